package imap

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
)

const inboxFolder = "INBOX"

// FolderNode is one segment of the server's folder hierarchy.
type FolderNode struct {
	Segment    string
	Path       string
	Listed     bool
	Selectable bool
	Children   map[string]*FolderNode
}

func newFolderNode(segment string) *FolderNode {
	return &FolderNode{Segment: segment, Children: make(map[string]*FolderNode)}
}

// ListFolders returns every selectable folder, INBOX first and the rest depth-first in name order.
func (f *MailboxFetcher) ListFolders(ctx context.Context, c *client.Client) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxFetcher.ListFolders")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)

	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var infos []*imap.MailboxInfo
	for m := range mailboxes {
		infos = append(infos, m)
	}

	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders := flattenFolders(buildFolderTree(infos))
	span.SetTag("folders.count", len(folders))
	return folders, nil
}

func buildFolderTree(infos []*imap.MailboxInfo) *FolderNode {
	root := newFolderNode("")

	for _, info := range infos {
		if info == nil || info.Name == "" {
			continue
		}

		segments := []string{info.Name}
		if info.Delimiter != "" {
			segments = strings.Split(info.Name, info.Delimiter)
		}

		node := root
		for _, segment := range segments {
			child, ok := node.Children[segment]
			if !ok {
				child = newFolderNode(segment)
				node.Children[segment] = child
			}
			node = child
		}

		node.Path = info.Name
		node.Listed = true
		node.Selectable = !utils.IsStringInSlice(imap.NoSelectAttr, info.Attributes)
	}

	return root
}

func flattenFolders(root *FolderNode) []string {
	var folders []string

	var walk func(node *FolderNode)
	walk = func(node *FolderNode) {
		if node.Listed && node.Selectable {
			folders = append(folders, node.Path)
		}
		for _, child := range sortedChildren(node) {
			walk(child)
		}
	}

	for _, child := range sortedChildren(root) {
		walk(child)
	}
	return folders
}

func sortedChildren(node *FolderNode) []*FolderNode {
	children := make([]*FolderNode, 0, len(node.Children))
	for _, child := range node.Children {
		children = append(children, child)
	}

	sort.Slice(children, func(i, j int) bool {
		iInbox := strings.EqualFold(children[i].Segment, inboxFolder)
		jInbox := strings.EqualFold(children[j].Segment, inboxFolder)
		if iInbox != jInbox {
			return iInbox
		}
		return children[i].Segment < children[j].Segment
	})
	return children
}
