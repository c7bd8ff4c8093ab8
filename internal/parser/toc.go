package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/famlearn/internal/model"
)

const maxHeadingRunes = 50

var (
	headingRegex    = regexp.MustCompile(`^(第[一二三四五六七八九十\d]+[章节课讲]|Chapter\s+\d+|\d+\.\d+(?:\.\d+)?|第?\s*\d+[\.、\s]|[一二三四五六七八九十]+[、．])\s*(.+)$`)
	subsectionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+`)
	sectionRegex    = regexp.MustCompile(`^\d+\.\d+`)
)

// ExtractTOC detects heading lines and nests them by level. Levels are
// 1 for chapters, 2 for sections and 3 for subsections.
func ExtractTOC(text string) []*model.ChapterNode {
	var (
		roots   []*model.ChapterNode
		parents [3]*model.ChapterNode
		seq     int
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || utf8.RuneCountInString(line) > maxHeadingRunes {
			continue
		}
		m := headingRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		if title == "" {
			continue
		}
		seq++
		node := &model.ChapterNode{
			ID:    fmt.Sprintf("chapter-%d", seq),
			Title: title,
			Level: headingLevel(m[1]),
		}
		attach(&roots, &parents, node)
	}
	return roots
}

func headingLevel(prefix string) int {
	switch {
	case subsectionRegex.MatchString(prefix):
		return 3
	case strings.Contains(prefix, "节") || sectionRegex.MatchString(prefix):
		return 2
	}
	return 1
}

// attach hangs node under the nearest open ancestor with a lower level. A
// section seen before any chapter becomes a root.
func attach(roots *[]*model.ChapterNode, parents *[3]*model.ChapterNode, node *model.ChapterNode) {
	level := node.Level
	var parent *model.ChapterNode
	for l := level - 1; l >= 1; l-- {
		if parents[l-1] != nil {
			parent = parents[l-1]
			break
		}
	}
	if parent == nil {
		*roots = append(*roots, node)
	} else {
		parent.Children = append(parent.Children, node)
	}
	parents[level-1] = node
	for l := level; l < len(parents); l++ {
		parents[l] = nil
	}
}
