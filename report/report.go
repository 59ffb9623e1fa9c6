// Package report accumulates human-readable summaries of pipeline runs and
// writes them out as a set of markdown documents.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/a3sha2/oxasl/transform"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// Report holds an ordered collection of named pages.
type Report struct {
	mu    sync.Mutex
	title string
	names []string
	pages map[string]*Page
}

// New makes an empty report with the given title.
func New(title string) *Report {
	if title == "" {
		title = "oxasl"
	}
	return &Report{
		title: title,
		pages: map[string]*Page{},
	}
}

// Page returns the page registered under name, creating it if needed. The
// name becomes the page's file name in the written report.
func (r *Report) Page(name string) *Page {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pages[name]; ok {
		return p
	}
	p := &Page{}
	r.names = append(r.names, name)
	r.pages[name] = p
	return p
}

// Add registers a prebuilt page under the given name, replacing any page
// already registered there.
func (r *Report) Add(name string, p *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[name]; !ok {
		r.names = append(r.names, name)
	}
	r.pages[name] = p
}

// Len returns the number of registered pages.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// Write renders one markdown file per page into dir, plus an index.md
// linking them in registration order.
func (r *Report) Write(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating report directory '%s'", dir)
	}

	catcher := grip.NewBasicCatcher()

	index := &strings.Builder{}
	fmt.Fprintf(index, "# %s\n\n", r.title)
	for _, name := range r.names {
		path := filepath.Join(dir, name+".md")
		catcher.Wrapf(os.WriteFile(path, []byte(r.pages[name].Render()), 0644), "writing report page '%s'", name)
		fmt.Fprintf(index, "- [%s](%s.md)\n", name, name)
	}
	catcher.Wrap(os.WriteFile(filepath.Join(dir, "index.md"), []byte(index.String()), 0644), "writing report index")

	return catcher.Resolve()
}

// Page is a single report document assembled from markdown blocks in the
// order they are added.
type Page struct {
	blocks []string
}

// Heading adds a heading at the given level, 0 being the topmost.
func (p *Page) Heading(text string, level int) {
	if level < 0 {
		level = 0
	}
	p.blocks = append(p.blocks, strings.Repeat("#", level+1)+" "+text)
}

// Text adds a paragraph, with fmt-style formatting when args are given.
func (p *Page) Text(format string, args ...interface{}) {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	p.blocks = append(p.blocks, format)
}

// Matrix adds a transformation matrix as a preformatted block.
func (p *Page) Matrix(a transform.Affine) {
	p.blocks = append(p.blocks, "```\n"+a.String()+"```")
}

// Table adds a table; the first row is the header.
func (p *Page) Table(rows [][]string) {
	if len(rows) == 0 {
		return
	}

	b := &strings.Builder{}
	for i, row := range rows {
		fmt.Fprintf(b, "| %s |\n", strings.Join(row, " | "))
		if i == 0 {
			seps := make([]string, len(row))
			for j := range seps {
				seps[j] = "---"
			}
			fmt.Fprintf(b, "| %s |\n", strings.Join(seps, " | "))
		}
	}
	p.blocks = append(p.blocks, strings.TrimRight(b.String(), "\n"))
}

// Render returns the page as a markdown document.
func (p *Page) Render() string {
	return strings.Join(p.blocks, "\n\n") + "\n"
}
