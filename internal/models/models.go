package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:150;not null;uniqueIndex"`
	Email        string    `gorm:"size:254"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    uint      `gorm:"not null;index"`
	User      User      `gorm:"constraint:OnDelete:CASCADE;"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
}

// Live reports whether the session still identifies its user at now.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type Group struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"size:200;not null"`
	Slug        string `gorm:"size:50;not null;uniqueIndex"`
	Description string `gorm:"type:text;not null"`
}

func (g Group) String() string {
	return g.Title
}

// Post is ordered newest first wherever it is listed.
type Post struct {
	ID        uint      `gorm:"primaryKey"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	GroupID   *uint     `gorm:"index"`
	Group     *Group    `gorm:"constraint:OnDelete:SET NULL;"`
	AuthorID  uint      `gorm:"not null;index"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE;"`
	Image     string    `gorm:"size:255"`
}

func (p Post) String() string {
	r := []rune(p.Text)
	if len(r) > 15 {
		r = r[:15]
	}
	return string(r)
}

type Comment struct {
	ID        uint      `gorm:"primaryKey"`
	PostID    *uint     `gorm:"index"`
	Post      *Post     `gorm:"constraint:OnDelete:CASCADE;"`
	AuthorID  uint      `gorm:"not null;index"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE;"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Follow is a directed subscription of UserID to the posts of AuthorID.
type Follow struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_follow_user_author"`
	User      User      `gorm:"constraint:OnDelete:CASCADE;"`
	AuthorID  uint      `gorm:"not null;uniqueIndex:idx_follow_user_author;index"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE;"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// All lists every record type in migration order.
func All() []any {
	return []any{&User{}, &Session{}, &Group{}, &Post{}, &Comment{}, &Follow{}}
}
