package client

import "time"

const (
	DefaultUsername     = "[unknown]"
	DefaultReplyTimeout = 15 * time.Second

	maxDatagramSize = 64 * 1024
	discardWait     = 5 * time.Millisecond
)
