// Package picker is a paged terminal file chooser built on huh.
package picker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const PageSize = 25

const (
	optFilter   = "filter"
	optPrev     = "prev_page"
	optNext     = "next_page"
	optPageInfo = "page_info"
	optCancel   = "cancel"
)

var (
	dirStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	pageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	ErrCanceled = errors.New("canceled")
)

type Picker struct {
	dir    string
	filter string
	page   int
	choice string

	// prompt asks for a new filter, given the current one.
	prompt func(current string) (string, error)
}

func New(dir string) *Picker {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	return &Picker{
		dir:    abs,
		prompt: promptFilter,
	}
}

func (p *Picker) Dir() string {
	return p.dir
}

// Run shows the chooser until a regular file is picked or it is cancelled.
func (p *Picker) Run() (string, error) {
	for {
		entries, err := p.entries()
		if err != nil {
			return "", err
		}

		form := huh.NewSelect[string]().
			Title(p.title()).
			Options(p.options(entries)...).
			Value(&p.choice).
			Height(20)

		if err := form.Run(); err != nil {
			return "", err
		}

		path, done, err := p.choose(p.choice, len(entries))
		if err != nil || done {
			return path, err
		}
	}
}

func (p *Picker) title() string {
	title := fmt.Sprintf("Choose a file to send (%s):", p.dir)
	if p.filter != "" {
		title += fmt.Sprintf(" [Filter: %s]", p.filter)
	}
	return title
}

// entries lists the current directory, directories first, then by name.
func (p *Picker) entries() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	if p.filter == "" {
		return entries, nil
	}

	filtered := make([]os.DirEntry, 0)
	filterLower := strings.ToLower(p.filter)
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Name()), filterLower) {
			filtered = append(filtered, entry)
		}
	}

	return filtered, nil
}

func pages(total int) int {
	n := (total + PageSize - 1) / PageSize
	if n == 0 {
		n = 1
	}
	return n
}

func (p *Picker) options(entries []os.DirEntry) []huh.Option[string] {
	var options []huh.Option[string]

	if parent := filepath.Dir(p.dir); parent != p.dir {
		options = append(options, huh.NewOption("../", parent))
	}

	filterText := "Filter files"
	if p.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", p.filter)
	}
	options = append(options, huh.NewOption(filterText, optFilter))

	total := pages(len(entries))
	if total > 1 {
		pageInfo := fmt.Sprintf("Page %d of %d (%d items)", p.page+1, total, len(entries))
		options = append(options, huh.NewOption(pageStyle.Render(pageInfo), optPageInfo))

		if p.page > 0 {
			options = append(options, huh.NewOption("<-", optPrev))
		}
		if p.page < total-1 {
			options = append(options, huh.NewOption("->", optNext))
		}
	}

	start := min(p.page*PageSize, len(entries))
	end := min(start+PageSize, len(entries))

	for _, entry := range entries[start:end] {
		name := entry.Name()
		if entry.IsDir() {
			name = dirStyle.Render(name + "/")
		}
		options = append(options, huh.NewOption(name, filepath.Join(p.dir, entry.Name())))
	}

	return append(options, huh.NewOption("Cancel", optCancel))
}

// choose applies one selection. done is true once path names a file.
func (p *Picker) choose(value string, total int) (path string, done bool, err error) {
	switch value {
	case optCancel:
		return "", true, ErrCanceled

	case optFilter:
		filter, err := p.prompt(p.filter)
		if err != nil {
			return "", true, err
		}
		p.filter = strings.TrimSpace(filter)
		p.page = 0

	case optPrev:
		p.page = max(p.page-1, 0)

	case optNext:
		p.page = min(p.page+1, pages(total)-1)

	case optPageInfo:

	default:
		stat, err := os.Stat(value)
		if err != nil {
			return "", false, nil
		}

		if stat.IsDir() {
			p.dir = value
			p.filter = ""
			p.page = 0
			return "", false, nil
		}

		return value, true, nil
	}

	return "", false, nil
}

func promptFilter(current string) (string, error) {
	var filter string

	err := huh.NewInput().
		Title("Filter:").
		Value(&filter).
		Placeholder(current).
		Run()

	return filter, err
}
