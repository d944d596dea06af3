package issuetracker

import "strings"

type createIssueRequest struct {
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Project     keyRef   `json:"project"`
	Summary     string   `json:"summary"`
	Description document `json:"description"`
	IssueType   nameRef  `json:"issuetype"`
	Priority    nameRef  `json:"priority"`
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

type createIssueResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// document is the rich-text format REST API v3 expects for descriptions.
type document struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Content []node `json:"content"`
}

type node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Content []node `json:"content,omitempty"`
}

// newDocument renders text as one paragraph per blank-line separated block.
// Text nodes must be non-empty.
func newDocument(text string) document {
	doc := document{Type: "doc", Version: 1, Content: []node{}}
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		doc.Content = append(doc.Content, node{
			Type:    "paragraph",
			Content: []node{{Type: "text", Text: block}},
		})
	}
	return doc
}
