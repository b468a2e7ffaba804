package render

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"reelcast/internal/model/short"
)

// ErrNotFound 渲染任务不存在
var ErrNotFound = errors.New("render not found")

// RenderRepository 渲染任务仓库接口
type RenderRepository interface {
	Create(ctx context.Context, r *short.Render) error
	FindByID(ctx context.Context, id string) (*short.Render, error)
	FindByUnitID(ctx context.Context, unitID string) ([]*short.Render, error)
	FindByStatus(ctx context.Context, status short.RenderStatus) ([]*short.Render, error) // 用于恢复未完成的任务
	UpdateStatus(ctx context.Context, id string, status short.RenderStatus, errorMsg string) error
	MarkCompleted(ctx context.Context, id string, result *short.Render) error
	MarkFailed(ctx context.Context, id string, errorMsg string, skipped []short.SkippedSegment) error
}

// RenderRepo 渲染任务仓库实现
type RenderRepo struct {
	coll *mongo.Collection
}

// NewRenderRepo 创建渲染任务仓库
func NewRenderRepo(db *mongo.Database) *RenderRepo {
	var r short.Render
	return &RenderRepo{coll: db.Collection(r.Collection())}
}

// Create 创建渲染任务记录
func (r *RenderRepo) Create(ctx context.Context, render *short.Render) error {
	now := time.Now()
	render.CreatedAt = now
	render.UpdatedAt = now
	if render.Status == "" {
		render.Status = short.RenderStatusPending
	}
	_, err := r.coll.InsertOne(ctx, render)
	return err
}

// FindByID 根据ID查询渲染任务
func (r *RenderRepo) FindByID(ctx context.Context, id string) (*short.Render, error) {
	var render short.Render
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&render)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &render, nil
}

// FindByUnitID 查询同一内容单元的所有渲染，最新的在前
func (r *RenderRepo) FindByUnitID(ctx context.Context, unitID string) ([]*short.Render, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	return r.find(ctx, bson.M{"unit_id": unitID}, opts)
}

// FindByStatus 根据状态查询渲染任务，最早的在前
func (r *RenderRepo) FindByStatus(ctx context.Context, status short.RenderStatus) ([]*short.Render, error) {
	opts := options.Find().SetSort(bson.M{"created_at": 1})
	return r.find(ctx, bson.M{"status": status}, opts)
}

func (r *RenderRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*short.Render, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var renders []*short.Render
	if err := cursor.All(ctx, &renders); err != nil {
		return nil, err
	}
	return renders, nil
}

// UpdateStatus 更新渲染任务状态
func (r *RenderRepo) UpdateStatus(ctx context.Context, id string, status short.RenderStatus, errorMsg string) error {
	update := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMsg != "" {
		update["error_message"] = errorMsg
	}
	return r.updateOne(ctx, id, update)
}

// MarkCompleted 记录渲染结果
func (r *RenderRepo) MarkCompleted(ctx context.Context, id string, result *short.Render) error {
	now := time.Now()
	update := bson.M{
		"status":      short.RenderStatusCompleted,
		"output_path": result.OutputPath,
		"output_url":  result.OutputURL,
		"storage_key": result.StorageKey,
		"duration":    result.Duration,
		"skipped":     result.Skipped,
		"updated_at":  now,
		"finished_at": now,
	}
	return r.updateOne(ctx, id, update)
}

// MarkFailed 记录渲染失败
func (r *RenderRepo) MarkFailed(ctx context.Context, id string, errorMsg string, skipped []short.SkippedSegment) error {
	now := time.Now()
	update := bson.M{
		"status":        short.RenderStatusFailed,
		"error_message": errorMsg,
		"updated_at":    now,
		"finished_at":   now,
	}
	if len(skipped) > 0 {
		update["skipped"] = skipped
	}
	return r.updateOne(ctx, id, update)
}

func (r *RenderRepo) updateOne(ctx context.Context, id string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
