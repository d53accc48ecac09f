package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUser(t *testing.T) {
	f, err := Classify([]byte("USER:alice"))
	require.NoError(t, err)
	assert.Equal(t, KindUser, f.Kind)
	assert.Equal(t, "alice", f.Name)

	f, err = Classify([]byte("USER:  bob \n"))
	require.NoError(t, err)
	assert.Equal(t, "bob", f.Name)
}

func TestClassifyFile(t *testing.T) {
	f, err := Classify([]byte("FILE:report.txt:5"))
	require.NoError(t, err)
	assert.Equal(t, KindFile, f.Kind)
	assert.Equal(t, "report.txt", f.Name)
	assert.Equal(t, int64(5), f.Size)

	f, err = Classify([]byte("FILE:a:b:c.txt:1024"))
	require.NoError(t, err)
	assert.Equal(t, "a:b:c.txt", f.Name)
	assert.Equal(t, int64(1024), f.Size)

	f, err = Classify([]byte("FILE:empty.bin:0"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Size)
}

func TestClassifyMalformedFile(t *testing.T) {
	cases := []string{
		"FILE:report.txt",
		"FILE:report.txt:",
		"FILE:report.txt:abc",
		"FILE:report.txt:-4",
	}

	for _, c := range cases {
		f, err := Classify([]byte(c))
		assert.ErrorIs(t, err, ErrMalformedFileHeader, c)
		assert.Equal(t, KindFile, f.Kind, c)
	}
}

func TestClassifyMessage(t *testing.T) {
	for _, m := range []string{"hello", "", "user:lowercase", " FILE:x:1", "FILE", "READY"} {
		f, err := Classify([]byte(m))
		require.NoError(t, err)
		assert.Equal(t, KindMessage, f.Kind, m)
		assert.Equal(t, m, string(f.Payload))
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "USER:alice", string(EncodeUser("alice")))
	assert.Equal(t, "FILE:report.txt:5", string(EncodeFile("report.txt", 5)))

	f, err := Classify(EncodeFile("x:y", 42))
	require.NoError(t, err)
	assert.Equal(t, "x:y", f.Name)
	assert.Equal(t, int64(42), f.Size)
}
