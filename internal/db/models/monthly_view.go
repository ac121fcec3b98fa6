package models

import "time"

// MonthlyView is an immutable month-end snapshot of a video's cumulative view
// count, plus the delta against the prior month. One row per
// (video, year, month).
type MonthlyView struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	VideoPK     int64     `db:"video_pk"`
	Year        int       `db:"year"`
	Month       int       `db:"month"`
	Views       int64     `db:"views"`
	ViewsChange int64     `db:"views_change"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// NewMonthlyView creates a snapshot row. ViewsChange is left to the caller:
// it is 0 for a video's first observed month.
func NewMonthlyView(userID, videoPK int64, year, month int, views, viewsChange int64) *MonthlyView {
	now := time.Now().UTC()
	return &MonthlyView{
		UserID:      userID,
		VideoPK:     videoPK,
		Year:        year,
		Month:       month,
		Views:       views,
		ViewsChange: viewsChange,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PreviousMonth returns the (year, month) immediately before the given month.
func PreviousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
