package server

import (
	"context"
	"time"

	"github.com/memesrc/memesrc/internal/frame"
)

// FrameStore defines the storage operations used for the frames index.
type FrameStore interface {
	ReadOnly() bool
	StartScanRun(ctx context.Context, root string, startedAt time.Time) (ScanRun, error)
	FinishScanRun(ctx context.Context, id string, finishedAt time.Time, frames int) error
	FailScanRun(ctx context.Context, id string, finishedAt time.Time, errMsg string) error
	LastScanRun(ctx context.Context) (ScanRun, bool, error)
	SaveFrames(ctx context.Context, frames []IndexedFrame) error
	DeleteFrames(ctx context.Context, fids []string) error
	AllFrames(ctx context.Context) ([]IndexedFrame, error)
	ListSeries(ctx context.Context) ([]Series, error)
}

// IndexedFrame is a frame image found under the media root.
type IndexedFrame struct {
	frame.ID
	FID      string    `json:"fid"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type Series struct {
	ID       string `json:"id"`
	Seasons  int    `json:"seasons"`
	Episodes int    `json:"episodes"`
	Frames   int    `json:"frames"`
}

type ScanRun struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Status     string    `json:"status"`
	Frames     int       `json:"frames"`
	Error      string    `json:"error,omitempty"`
}

const (
	ScanRunning  = "running"
	ScanFinished = "finished"
	ScanFailed   = "failed"
)
