// Package markdown extracts the few facts the audit needs from README text.
package markdown

import (
	"regexp"
	"strings"
)

var imagePattern = regexp.MustCompile(`!\[[^\]]*?\]\((.*?)\)`)

// badgeHosts are image hosts that only serve status badges.
var badgeHosts = []string{
	"shields.io",
	"travis-ci.org",
	"travis-ci.com",
	"codeclimate.com",
	"codecov.io",
	"badge.fury.io",
	"github.com/workflows",
}

// ImageURLs returns the targets of every inline image in content, in order.
func ImageURLs(content string) []string {
	matches := imagePattern.FindAllStringSubmatch(content, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		url := strings.TrimSpace(m[1])
		if idx := strings.IndexAny(url, " \t"); idx > 0 {
			// drop an optional "title"
			url = url[:idx]
		}
		urls = append(urls, url)
	}
	return urls
}

// BadgeURLs returns the image URLs that look like status badges: svg images
// or images served by a known badge host.
func BadgeURLs(content string) []string {
	var badges []string
	for _, url := range ImageURLs(content) {
		if isBadge(url) {
			badges = append(badges, url)
		}
	}
	return badges
}

func isBadge(url string) bool {
	lower := strings.ToLower(url)
	path, _, _ := strings.Cut(lower, "?")
	if strings.HasSuffix(path, ".svg") || strings.Contains(lower, "badge") {
		return true
	}
	for _, host := range badgeHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

// Description returns the first prose paragraph of content joined into one
// line, or "" when there is none. Headings, images, html and lists are skipped.
func Description(content string) string {
	var paragraph []string
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			if len(paragraph) > 0 {
				break
			}
			continue
		}
		if skipLine(line) {
			if len(paragraph) > 0 {
				break
			}
			continue
		}
		paragraph = append(paragraph, line)
	}
	return strings.Join(paragraph, " ")
}

func skipLine(line string) bool {
	for _, prefix := range []string{"#", "![", "[![", "<", "-", "*", "```", "=", "|", ">"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Sentence terminates s with a period unless it is empty or already does.
func Sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}

// ContainsAny reports whether content mentions any of options,
// case-insensitively.
func ContainsAny(content string, options []string) bool {
	lower := strings.ToLower(content)
	for _, option := range options {
		if strings.Contains(lower, strings.ToLower(option)) {
			return true
		}
	}
	return false
}
