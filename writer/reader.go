package writer

import (
	"github.com/golang/snappy"

	"github.com/xPOURY4/monad-sub013/node"
)

// DecodeNode reverses WriteNode: raw is the bytes read back from disk at
// a child's FileOffset, and compressed must match the writer that
// produced them (true for anything read from a slow chunk, false for
// fast). It returns the node and ignores the cursor Deserialize reports,
// since a node record is the only thing ever stored at its offset.
func DecodeNode(raw []byte, compressed bool) (*node.Node, error) {
	if compressed {
		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}
	n, _, err := node.Deserialize(raw)
	return n, err
}
