package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdftools/internal/export"
)

// Redis keeps each job in a hash "job:<id>:status" with the artifact
// manifest as a JSON field. Every save refreshes the key's TTL.
type Redis struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedis connects to redisURL and checks connectivity.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: c, keyNS: "job", ttl: ttl}, nil
}

func (s *Redis) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *Redis) Save(ctx context.Context, job Job) error {
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	m := map[string]interface{}{
		"tool":       job.Tool,
		"status":     string(job.Status),
		"progress":   job.Progress,
		"message":    job.Message,
		"file_name":  job.FileName,
		"created":    job.Created.Format(time.RFC3339Nano),
		"pages":      job.Pages,
		"source_key": job.SourceKey,
		"artifacts":  string(artifacts),
	}
	if job.Start != nil {
		m["start"] = job.Start.Format(time.RFC3339Nano)
	}
	if job.End != nil {
		m["end"] = job.End.Format(time.RFC3339Nano)
	}

	key := s.key(job.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, id string) (Job, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(res) == 0 {
		return Job{}, ErrNotFound
	}

	job := Job{
		ID:        id,
		Tool:      res["tool"],
		Status:    State(res["status"]),
		Message:   res["message"],
		FileName:  res["file_name"],
		SourceKey: res["source_key"],
	}
	// unparsable numbers default to 0
	job.Progress, _ = strconv.Atoi(res["progress"])
	job.Pages, _ = strconv.Atoi(res["pages"])
	if t, err := time.Parse(time.RFC3339Nano, res["created"]); err == nil {
		job.Created = t
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.End = &t
		}
	}
	if v := res["artifacts"]; v != "" && v != "null" {
		var artifacts []export.Artifact
		if err := json.Unmarshal([]byte(v), &artifacts); err != nil {
			return Job{}, fmt.Errorf("decode artifacts of job %s: %w", id, err)
		}
		job.Artifacts = artifacts
	}
	return job, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *Redis) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *Redis) Client() *redis.Client { return s.client }
