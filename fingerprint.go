package upload

import (
	"fmt"

	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// Fingerprint derives the identity string that recognizes the same logical
// upload across process restarts. Named sources use their file identity
// attributes; anonymous sources fall back to size and content type. The
// destination is always part of the identity, so the same file headed to
// two keys is two distinct uploads.
//
// Two in-memory sources that resolve to the same fingerprint are treated
// as the same logical upload.
func Fingerprint(src Source, dest uploadtypes.Destination) string {
	if named, ok := src.(Named); ok && named.Name() != "" {
		return fmt.Sprintf("%s-%d-%d-%s-%s-%s",
			named.Name(),
			named.ModTime().UnixMilli(),
			src.Size(),
			src.ContentType(),
			dest.Container,
			dest.Key,
		)
	}
	return fmt.Sprintf("%d-%s-%s-%s",
		src.Size(),
		src.ContentType(),
		dest.Container,
		dest.Key,
	)
}
