package rag

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/harrison/corerun/internal/fileutil"
	"github.com/harrison/corerun/internal/models"
)

// GrepProvider is a local, dependency-free Provider: it scans Root with
// fileutil's scanner and scores files by how many query terms each line
// contains. It exists so rag.query has a real, demonstrable implementation in
// environments with no external retrieval service configured — not a
// replacement for one.
type GrepProvider struct {
	Root       string
	Extensions []string
}

func NewGrepProvider(root string) *GrepProvider {
	return &GrepProvider{Root: root, Extensions: []string{".go", ".md", ".yaml", ".yml"}}
}

func (p *GrepProvider) RetrieveContext(_ context.Context, query string, scope models.Scope, _ string, limit int) ([]Fragment, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	result, err := fileutil.ScanDirectory(p.Root, fileutil.ScanOptions{
		Recursive:   true,
		Extensions:  p.Extensions,
		ExcludeDirs: []string{".git", "node_modules", "vendor"},
	})
	if err != nil {
		return nil, fmt.Errorf("rag: scan %s: %w", p.Root, err)
	}

	var fragments []Fragment
	for _, path := range result.Files {
		if !scope.Allows(path) {
			continue
		}
		frags := scoreFile(path, terms)
		fragments = append(fragments, frags...)
	}

	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Score > fragments[j].Score })
	if len(fragments) > limit {
		fragments = fragments[:limit]
	}
	return fragments, nil
}

func scoreFile(path string, terms []string) []Fragment {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var best Fragment
	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		matches := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(terms))
		if !found || score > best.Score {
			best = Fragment{Content: fmt.Sprintf("%s: %s", path, strings.TrimSpace(line)), Origin: OriginWorkspace, Score: score}
			found = true
		}
	}
	if !found {
		return nil
	}
	return []Fragment{best}
}
