package transcript

import (
	"strings"

	"github.com/sadeshmukh/discord-ai/internal/mention"
)

// Annotation markers posted by the relay when a recent message is removed or changed.
const (
	DeletedMarker = "DELETED"
	EditedMarker  = "EDITED"
)

// Deleted formats the message posted in place of a deleted one.
func Deleted(authorID, content string) string {
	return DeletedMarker + " <@" + authorID + ">: " + content
}

// Edited formats the message posted when the latest message is edited.
func Edited(authorID, content string) string {
	return EditedMarker + " <@" + authorID + ">: " + content
}

// parseAnnotation splits an annotation into the original author ID and content.
func parseAnnotation(s string) (authorID, content string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(s, DeletedMarker+" <@"):
		rest = s[len(DeletedMarker)+1:]
	case strings.HasPrefix(s, EditedMarker+" <@"):
		rest = s[len(EditedMarker)+1:]
	default:
		return "", "", false
	}

	ref, content, found := strings.Cut(rest, ": ")
	if !found {
		// Annotation of an empty message: "DELETED <@id>:"
		ref = strings.TrimSuffix(rest, ":")
	}
	toks := mention.Parse(ref)
	if len(toks) != 1 || toks[0].Kind != mention.ID {
		return "", "", false
	}
	return toks[0].Value, content, true
}
