package models

// ReportEntry is one row of the monthly reporting view: a snapshot joined to
// its video.
type ReportEntry struct {
	UserID      int64   `db:"user_id"`
	Year        int     `db:"year"`
	Month       int     `db:"month"`
	Views       int64   `db:"views"`
	ViewsChange int64   `db:"views_change"`
	VideoPK     int64   `db:"video_pk"`
	VideoID     string  `db:"video_id"`
	Title       *string `db:"title"`
	URL         string  `db:"url"`
	IsActive    bool    `db:"is_active"`
}
