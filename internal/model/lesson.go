package model

import (
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VideoSource string

const (
	VideoSourceLocal    VideoSource = "local"
	VideoSourceYouTube  VideoSource = "youtube"
	VideoSourceVimeo    VideoSource = "vimeo"
	VideoSourceCloud    VideoSource = "cloud"
	VideoSourceExternal VideoSource = "external"
)

// VideoRequirements 课时级别的视频完成要求，存储为 JSON，缺省值见 DefaultVideoRequirements
type VideoRequirements struct {
	MinWatchPercentage  float64 `json:"min_watch_percentage"`
	MinEngagementScore  float64 `json:"min_engagement_score"`
	MinTimePercentage   float64 `json:"min_time_percentage"`
	AllowSkipping       bool    `json:"allow_skipping"`
	RequireContinuous   bool    `json:"require_continuous"`
}

func DefaultVideoRequirements() VideoRequirements {
	return VideoRequirements{
		MinWatchPercentage: 90,
		MinEngagementScore: 7,
		MinTimePercentage:  50,
	}
}

// Lesson 课时：可选视频 + 可选练习题，order 在课程内唯一
// swagger:model
type Lesson struct {
	BaseModel
	CourseID    uint   `gorm:"uniqueIndex:idx_course_order;index" json:"courseId"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Order       int    `gorm:"uniqueIndex:idx_course_order;not null" json:"order"`
	Description string `gorm:"type:text" json:"description"`
	Content     string `gorm:"type:text" json:"content"`
	Duration    int    `gorm:"default:30" json:"duration"` // 预计学习时长（分钟）
	IsActive    bool   `gorm:"default:true" json:"isActive"`

	// 练习题定义，三种合法形态（数组 / {questions:[...]} / 按题型分键），由 service.ParseExercises 统一解析
	Exercise datatypes.JSON `gorm:"type:json" json:"exercise"`

	VideoURL          string            `gorm:"size:500" json:"videoUrl"`
	VideoSource       VideoSource       `gorm:"size:20;default:local" json:"videoSource"`
	VideoDuration     int               `gorm:"default:0" json:"videoDuration"` // 视频时长（秒）
	VideoRequirements datatypes.JSONMap `gorm:"type:json" json:"videoRequirements"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// GetVideoRequirements 返回合并缺省值后的视频完成要求
func (l *Lesson) GetVideoRequirements() VideoRequirements {
	req := DefaultVideoRequirements()
	if l.VideoRequirements == nil {
		return req
	}
	if v, ok := toFloat(l.VideoRequirements["min_watch_percentage"]); ok {
		req.MinWatchPercentage = v
	}
	if v, ok := toFloat(l.VideoRequirements["min_engagement_score"]); ok {
		req.MinEngagementScore = v
	}
	if v, ok := toFloat(l.VideoRequirements["min_time_percentage"]); ok {
		req.MinTimePercentage = v
	}
	if v, ok := l.VideoRequirements["allow_skipping"].(bool); ok {
		req.AllowSkipping = v
	}
	if v, ok := l.VideoRequirements["require_continuous"].(bool); ok {
		req.RequireContinuous = v
	}
	return req
}

func (l *Lesson) HasVideo() bool {
	return l.VideoURL != ""
}

func (l *Lesson) HasExercises() bool {
	return len(l.Exercise) > 0 && string(l.Exercise) != "null"
}

// CleanVideoURL 本地文件统一加 /media/videos/ 前缀
func (l *Lesson) CleanVideoURL() {
	if l.VideoURL == "" {
		return
	}
	url := strings.TrimSpace(l.VideoURL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "/media/") {
		if !strings.HasPrefix(url, "videos/") {
			url = "videos/" + url
		}
		url = "/media/" + url
	}
	l.VideoURL = url
}

// DetectVideoSource 根据 URL 推断视频来源
func (l *Lesson) DetectVideoSource() VideoSource {
	if l.VideoURL == "" {
		return VideoSourceLocal
	}
	url := strings.ToLower(l.VideoURL)
	switch {
	case strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be"):
		return VideoSourceYouTube
	case strings.Contains(url, "vimeo.com"):
		return VideoSourceVimeo
	case strings.Contains(url, "cloudinary.com") || strings.Contains(url, "amazonaws.com") || strings.Contains(url, "s3."):
		return VideoSourceCloud
	case strings.HasPrefix(url, "/media/"):
		return VideoSourceLocal
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		return VideoSourceExternal
	default:
		return VideoSourceLocal
	}
}

func (l *Lesson) BeforeSave(tx *gorm.DB) error {
	l.CleanVideoURL()
	l.VideoSource = l.DetectVideoSource()
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}
