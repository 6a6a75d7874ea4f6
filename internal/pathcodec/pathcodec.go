// Package pathcodec converts between a message's ancestor chain and its
// materialized-path string. The codec is pure: it never touches storage,
// and both the branch resolver and the context retriever share it.
package pathcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// Delimiter terminates every id segment in a materialized path.
// Ids are integers, so the delimiter never needs escaping.
const Delimiter = "/"

// MalformedPathError indicates a stored path failed to decode. Under the
// append invariant this can only happen if a prior write corrupted the row,
// so it must be surfaced loudly, never repaired in place.
type MalformedPathError struct {
	Path  string
	Token string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed message path %q: token %q is not a message id", e.Path, e.Token)
}

// Encode renders an ancestor chain plus the message's own id as a path
// string: Encode([1,5], 20) == "1/5/20/".
func Encode(ancestors []int64, self int64) string {
	var b strings.Builder
	for _, id := range ancestors {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteString(Delimiter)
	}
	b.WriteString(strconv.FormatInt(self, 10))
	b.WriteString(Delimiter)
	return b.String()
}

// Append extends a parent's already-encoded path with one more id. An empty
// parent path yields a root path. This is the form the two-phase append
// uses: the parent path is stored pre-encoded and never re-decoded there.
func Append(parentPath string, id int64) string {
	return parentPath + strconv.FormatInt(id, 10) + Delimiter
}

// Decode splits a path back into its ordered id list: "1/5/20/" → [1,5,20].
// The trailing empty token from the final delimiter is discarded. Any other
// non-numeric token returns a *MalformedPathError; the decoder never
// truncates silently.
func Decode(path string) ([]int64, error) {
	if path == "" {
		return nil, nil
	}
	tokens := strings.Split(path, Delimiter)
	ids := make([]int64, 0, len(tokens))
	for i, token := range tokens {
		if token == "" {
			if i == len(tokens)-1 {
				continue // trailing delimiter
			}
			return nil, &MalformedPathError{Path: path, Token: token}
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, &MalformedPathError{Path: path, Token: token}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
