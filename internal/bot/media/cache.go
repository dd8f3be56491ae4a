// Package media sends photos and videos through Telegram while uploading
// every distinct file at most once. Files are addressed by the SHA-256 of
// their content, so a redeploy with byte-identical files keeps reusing the
// handles Telegram already issued.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// KindFromPath guesses the media kind from the file extension.
func KindFromPath(p string) Kind {
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4", ".mov", ".webm", ".mkv":
		return KindVideo
	default:
		return KindPhoto
	}
}

var ErrDeliveryFailed = errors.New("media delivery failed")

// DeliveryError carries the transport's rejection. It matches
// ErrDeliveryFailed with errors.Is.
type DeliveryError struct {
	Source string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Source, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Index persists fingerprint -> Telegram file_id.
type Index interface {
	LookupFileID(ctx context.Context, fingerprint string) (string, bool, error)
	StoreFileID(ctx context.Context, fingerprint, fileID string) error
}

type Request struct {
	ChatID    int64
	Kind      Kind
	Source    string // path inside the media root; ignored for KindText
	Caption   string
	ParseMode string
	Keyboard  any
}

type Result struct {
	MessageID int
	FileID    string
	Uploaded  bool
}

type Options struct {
	// ProcessingNotice is shown while a file is uploaded for the first time.
	ProcessingNotice string
}

type Cache struct {
	sender Sender
	index  Index
	files  fs.FS
	logger *zap.Logger
	notice string

	local   sync.Map // fingerprint -> file_id
	uploads singleflight.Group
}

func New(sender Sender, index Index, files fs.FS, logger *zap.Logger, opts Options) *Cache {
	return &Cache{
		sender: sender,
		index:  index,
		files:  files,
		logger: logger,
		notice: opts.ProcessingNotice,
	}
}

// Fingerprint is the content address of a media file.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Deliver(ctx context.Context, req Request) (Result, error) {
	if req.Kind == KindText || req.Source == "" {
		msg := tgbotapi.NewMessage(req.ChatID, req.Caption)
		msg.ParseMode = req.ParseMode
		if req.Keyboard != nil {
			msg.ReplyMarkup = req.Keyboard
		}
		sent, err := c.sender.Send(msg)
		if err != nil {
			return Result{}, &DeliveryError{Source: "text", Err: err}
		}
		return Result{MessageID: sent.MessageID}, nil
	}
	if req.Kind == "" {
		req.Kind = KindFromPath(req.Source)
	}

	data, err := fs.ReadFile(c.files, req.Source)
	if err != nil {
		return Result{}, &DeliveryError{Source: req.Source, Err: err}
	}
	fp := Fingerprint(data)

	if fileID, ok := c.lookup(ctx, fp); ok {
		return c.sendCached(req, fileID)
	}

	var led bool
	v, err, _ := c.uploads.Do(fp, func() (any, error) {
		led = true
		return c.upload(ctx, req, fp, data)
	})
	if err != nil {
		return Result{}, err
	}

	up := v.(uploaded)
	if led && up.messageID != 0 {
		return Result{MessageID: up.messageID, FileID: up.fileID, Uploaded: true}, nil
	}
	if up.fileID == "" {
		return Result{}, &DeliveryError{Source: req.Source, Err: errors.New("no file id issued for shared upload")}
	}
	// Someone else's upload; deliver to our chat by handle.
	return c.sendCached(req, up.fileID)
}

type uploaded struct {
	fileID    string
	messageID int
}

func (c *Cache) upload(ctx context.Context, req Request, fp string, data []byte) (uploaded, error) {
	// Another flight may have finished between our lookup and this one.
	if fileID, ok := c.lookup(ctx, fp); ok {
		return uploaded{fileID: fileID}, nil
	}

	noticeID := c.showNotice(req.ChatID)
	defer c.dropNotice(req.ChatID, noticeID)

	file := tgbotapi.FileBytes{Name: path.Base(req.Source), Bytes: data}
	sent, err := c.sender.Send(build(req, file))
	if err != nil {
		c.logger.Error("Failed to upload media",
			zap.String("source", req.Source),
			zap.String("fingerprint", fp),
			zap.Error(err))
		return uploaded{}, &DeliveryError{Source: req.Source, Err: err}
	}

	fileID := extractFileID(req.Kind, sent)
	if fileID == "" {
		c.logger.Warn("Upload response carries no file id",
			zap.String("source", req.Source))
		return uploaded{messageID: sent.MessageID}, nil
	}

	c.local.Store(fp, fileID)
	if err := c.index.StoreFileID(ctx, fp, fileID); err != nil {
		c.logger.Warn("Failed to persist media file id",
			zap.String("fingerprint", fp),
			zap.Error(err))
	}

	c.logger.Info("Media uploaded",
		zap.String("source", req.Source),
		zap.String("fingerprint", fp))
	return uploaded{fileID: fileID, messageID: sent.MessageID}, nil
}

func (c *Cache) sendCached(req Request, fileID string) (Result, error) {
	sent, err := c.sender.Send(build(req, tgbotapi.FileID(fileID)))
	if err != nil {
		return Result{}, &DeliveryError{Source: req.Source, Err: err}
	}
	return Result{MessageID: sent.MessageID, FileID: fileID}, nil
}

func (c *Cache) lookup(ctx context.Context, fp string) (string, bool) {
	if v, ok := c.local.Load(fp); ok {
		return v.(string), true
	}

	fileID, ok, err := c.index.LookupFileID(ctx, fp)
	if err != nil {
		// Treat as a miss: an extra upload is better than no delivery.
		c.logger.Warn("Media index lookup failed",
			zap.String("fingerprint", fp),
			zap.Error(err))
		return "", false
	}
	if ok {
		c.local.Store(fp, fileID)
	}
	return fileID, ok
}

func (c *Cache) showNotice(chatID int64) int {
	if c.notice == "" {
		return 0
	}
	sent, err := c.sender.Send(tgbotapi.NewMessage(chatID, c.notice))
	if err != nil {
		c.logger.Warn("Failed to send processing notice",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return 0
	}
	return sent.MessageID
}

func (c *Cache) dropNotice(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := c.sender.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		c.logger.Warn("Failed to delete processing notice",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	}
}

func build(req Request, file tgbotapi.RequestFileData) tgbotapi.Chattable {
	switch req.Kind {
	case KindVideo:
		v := tgbotapi.NewVideo(req.ChatID, file)
		v.Caption = req.Caption
		v.ParseMode = req.ParseMode
		if req.Keyboard != nil {
			v.ReplyMarkup = req.Keyboard
		}
		return v
	default:
		p := tgbotapi.NewPhoto(req.ChatID, file)
		p.Caption = req.Caption
		p.ParseMode = req.ParseMode
		if req.Keyboard != nil {
			p.ReplyMarkup = req.Keyboard
		}
		return p
	}
}

func extractFileID(kind Kind, msg tgbotapi.Message) string {
	switch kind {
	case KindVideo:
		if msg.Video != nil {
			return msg.Video.FileID
		}
	default:
		if n := len(msg.Photo); n > 0 {
			return msg.Photo[n-1].FileID
		}
	}
	return ""
}
