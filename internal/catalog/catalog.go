// Package catalog holds the paper types and print sizes a customer can order.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid wraps every catalog validation failure.
var ErrInvalid = errors.New("catalog: invalid")

// Size is one print size of a paper type with its unit price.
type Size struct {
	Label string `json:"size" yaml:"size" toml:"size"`
	Price int    `json:"price" yaml:"price" toml:"price"`
}

// Paper is a paper type with its sizes in menu order.
type Paper struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Sizes []Size `json:"sizes" yaml:"sizes" toml:"sizes"`
}

// Catalog is an immutable, ordered list of papers.
type Catalog struct {
	papers []Paper
	byName map[string]int
}

// New validates papers and builds a catalog.
func New(papers []Paper) (*Catalog, error) {
	c := &Catalog{
		papers: make([]Paper, 0, len(papers)),
		byName: make(map[string]int, len(papers)),
	}
	for i, p := range papers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: paper #%d has no name", ErrInvalid, i+1)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate paper %q", ErrInvalid, name)
		}
		if len(p.Sizes) == 0 {
			return nil, fmt.Errorf("%w: paper %q has no sizes", ErrInvalid, name)
		}
		sizes := make([]Size, 0, len(p.Sizes))
		for j, s := range p.Sizes {
			label := strings.TrimSpace(s.Label)
			if label == "" {
				return nil, fmt.Errorf("%w: paper %q size #%d has no label", ErrInvalid, name, j+1)
			}
			if s.Price < 0 {
				return nil, fmt.Errorf("%w: paper %q size %q has negative price", ErrInvalid, name, label)
			}
			sizes = append(sizes, Size{Label: label, Price: s.Price})
		}
		c.byName[name] = len(c.papers)
		c.papers = append(c.papers, Paper{Name: name, Sizes: sizes})
	}
	if len(c.papers) == 0 {
		return nil, fmt.Errorf("%w: no papers", ErrInvalid)
	}
	return c, nil
}

// Len returns the number of paper types.
func (c *Catalog) Len() int {
	return len(c.papers)
}

// Papers lists paper names in menu order.
func (c *Catalog) Papers() []string {
	names := make([]string, len(c.papers))
	for i, p := range c.papers {
		names[i] = p.Name
	}
	return names
}

// PaperAt returns the paper name at 0-based index i.
func (c *Catalog) PaperAt(i int) (string, bool) {
	if i < 0 || i >= len(c.papers) {
		return "", false
	}
	return c.papers[i].Name, true
}

// Sizes lists the sizes of the named paper; nil for unknown papers.
func (c *Catalog) Sizes(paper string) []Size {
	i, ok := c.byName[paper]
	if !ok {
		return nil
	}
	return append([]Size(nil), c.papers[i].Sizes...)
}

// SizeAt returns the size at 0-based index i of the named paper.
func (c *Catalog) SizeAt(paper string, i int) (Size, bool) {
	sizes := c.Sizes(paper)
	if i < 0 || i >= len(sizes) {
		return Size{}, false
	}
	return sizes[i], true
}
