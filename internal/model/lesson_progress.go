package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// LessonProgress 一个学生在一个课时上的视频观看与完成记录，(student, lesson) 唯一，独立于 StudentExercise
//
// video_progress / engagement_score / watched_percentage 都是只增不减的棘轮值，
// 乱序或过期的上报样本不会让进度回退；video_completed 一旦为 true 不会被上报清除。
// swagger:model
type LessonProgress struct {
	BaseModel
	StudentID      uint       `gorm:"uniqueIndex:idx_progress_student_lesson;index" json:"studentId"`
	LessonID       uint       `gorm:"uniqueIndex:idx_progress_student_lesson;index" json:"lessonId"`
	VideoProgress  float64    `gorm:"default:0" json:"videoProgress"` // 已观看位置（秒）
	VideoDuration  float64    `gorm:"default:0" json:"videoDuration"` // 视频总时长（秒）
	VideoCompleted bool       `gorm:"default:false" json:"videoCompleted"`
	CompletedAt    *time.Time `json:"completedAt"`
	TimeSpent      int        `gorm:"default:0" json:"timeSpent"`    // 累计学习时间（秒）
	SessionCount   int        `gorm:"default:0" json:"sessionCount"` // 学习会话次数
	LastAccessed   time.Time  `gorm:"autoUpdateTime" json:"lastAccessed"`

	EngagementData datatypes.JSONMap `gorm:"type:json" json:"engagementData"`
	WatchPatterns  datatypes.JSON    `gorm:"type:json" json:"watchPatterns"`

	Student User   `gorm:"foreignKey:StudentID" json:"-"`
	Lesson  Lesson `gorm:"foreignKey:LessonID" json:"-"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}

// SetWatchPatterns 序列化观看片段记录，编码失败时保持原值
func (p *LessonProgress) SetWatchPatterns(patterns []interface{}) {
	raw, err := json.Marshal(patterns)
	if err != nil {
		return
	}
	p.WatchPatterns = datatypes.JSON(raw)
}

// EngagementScore 从 engagement_data 取参与度评分（0-10），缺省 0
func (p *LessonProgress) EngagementScore() float64 {
	if p.EngagementData == nil {
		return 0
	}
	v, _ := toFloat(p.EngagementData["engagement_score"])
	return v
}

// WatchedPercentage 从 engagement_data 取观看覆盖率（0-100），缺省 0
func (p *LessonProgress) WatchedPercentage() float64 {
	if p.EngagementData == nil {
		return 0
	}
	v, _ := toFloat(p.EngagementData["watched_percentage"])
	return v
}
