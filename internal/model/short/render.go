package short

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RenderStatus 渲染任务状态
type RenderStatus string

const (
	RenderStatusPending    RenderStatus = "pending"    // 待处理
	RenderStatusProcessing RenderStatus = "processing" // 处理中
	RenderStatusCompleted  RenderStatus = "completed"  // 已完成
	RenderStatusFailed     RenderStatus = "failed"     // 失败
)

// String 返回状态的字符串表示
func (s RenderStatus) String() string {
	return string(s)
}

// SkippedSegment 被跳过的段落及原因
type SkippedSegment struct {
	SegmentID string `bson:"segment_id" json:"segment_id"`
	Role      Role   `bson:"role" json:"role"`
	Reason    string `bson:"reason" json:"reason"`
}

// Render 渲染任务实体
type Render struct {
	ID           string           `bson:"id" json:"id"`                                           // 任务ID（UUID）
	UnitID       string           `bson:"unit_id" json:"unit_id"`                                 // 内容单元ID
	Kind         Kind             `bson:"kind" json:"kind"`                                       // 内容形态
	Title        string           `bson:"title" json:"title"`                                     // 标题
	Payload      string           `bson:"payload" json:"-"`                                       // 内容单元原始 JSON
	OutputPath   string           `bson:"output_path" json:"output_path"`                         // 本地输出路径
	OutputURL    string           `bson:"output_url,omitempty" json:"output_url,omitempty"`       // 发布到存储后的地址
	StorageKey   string           `bson:"storage_key,omitempty" json:"storage_key,omitempty"`     // 存储 key
	Duration     float64          `bson:"duration" json:"duration"`                               // 视频时长（秒）
	Skipped      []SkippedSegment `bson:"skipped,omitempty" json:"skipped,omitempty"`             // 被跳过的段落
	Status       RenderStatus     `bson:"status" json:"status"`                                   // 状态
	ErrorMessage string           `bson:"error_message,omitempty" json:"error_message,omitempty"` // 错误信息
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at" json:"updated_at"`
	FinishedAt   *time.Time       `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// Collection 返回集合名称
func (r *Render) Collection() string {
	return "renders"
}

// EnsureIndexes 创建和维护索引
func (r *Render) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(r.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "unit_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_unit_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_status_created"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
