package media

import "time"

// Subject identifies media rows in authorization rules.
const Subject = "media"

// Permission names declared by the media module.
const (
	PermMediaUpload = "media.upload"
	PermMediaOwner  = "media.owner"
	PermMediaManage = "media.manage"
)

// File is an uploaded asset. Bytes live on disk under a generated name; the
// row keeps the original filename for presentation.
type File struct {
	ID        int64
	UserID    int64
	Filename  string
	StoredAs  string
	MimeType  string
	Size      int64
	CreatedAt time.Time
}
