package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"flowbot/internal/config"
	"flowbot/internal/quiz"
)

var (
	ErrFormNotFound      = errors.New("form not found")
	ErrPhoneTaken        = errors.New("phone already registered")
	ErrAlreadyRegistered = errors.New("user already registered")
)

const uniqueViolation = "23505"

type PostgresStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Registration is the record produced by the registration wizard.
type Registration struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	City       string
	Language   string
	Phone      string
	Games      []string
	Longitude  *float64
	Latitude   *float64
}

type FormSummary struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	OneOff      bool   `db:"one_off"`
	AccessLevel int    `db:"access_level"`
}

// Result is a completed run through a form.
type Result struct {
	TelegramID int64
	FormID     int64
	Score      int
	Answers    map[string]string
}

type formRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Mode        string `db:"mode"`
	OneOff      bool   `db:"one_off"`
	AccessLevel int    `db:"access_level"`
	FinishText  string `db:"finish_text"`
}

type questionRow struct {
	ID            int64  `db:"id"`
	FormID        int64  `db:"form_id"`
	Position      int    `db:"position"`
	Text          string `db:"text"`
	Image         string `db:"image"`
	MultiAnswer   bool   `db:"multi_answer"`
	CustomAnswer  bool   `db:"custom_answer"`
	AcceptsFile   bool   `db:"accepts_file"`
	OneRowButtons bool   `db:"one_row_buttons"`
}

type answerRow struct {
	ID         int64         `db:"id"`
	QuestionID int64         `db:"question_id"`
	Text       string        `db:"text"`
	IsCorrect  bool          `db:"is_correct"`
	JumpTo     sql.NullInt64 `db:"jump_to"`
}

func NewPostgresStorage(ctx context.Context, cfg config.Database, logger *zap.Logger) (*PostgresStorage, error) {
	const operation = "storage.NewPostgresStorage"

	var db *sqlx.DB

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = 2 * time.Minute
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("Connecting to PostgreSQL...")

	err := backoff.RetryNotify(
		func() error {
			conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			if err = conn.PingContext(ctx); err != nil {
				conn.Close()
				return fmt.Errorf("ping: %w", err)
			}
			db = conn
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, duration time.Duration) {
			logger.Warn("PostgreSQL connection failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", duration))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after retries: %w", operation, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger.Info("Successfully connected to PostgreSQL")
	return &PostgresStorage{db: db, logger: logger}, nil
}

// DB exposes the raw handle for migrations.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db.DB
}

func (s *PostgresStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertContact records that a Telegram user talked to the bot.
func (s *PostgresStorage) UpsertContact(ctx context.Context, telegramID int64, username string) (int64, error) {
	return upsertContact(ctx, s.db, telegramID, username)
}

func upsertContact(ctx context.Context, q sqlx.QueryerContext, telegramID int64, username string) (int64, error) {
	const query = `
        INSERT INTO contacts (telegram_id, username)
        VALUES ($1, $2)
        ON CONFLICT (telegram_id) DO UPDATE
            SET username = CASE WHEN EXCLUDED.username = '' THEN contacts.username ELSE EXCLUDED.username END
        RETURNING id
    `
	var id int64
	if err := sqlx.GetContext(ctx, q, &id, query, telegramID, username); err != nil {
		return 0, fmt.Errorf("failed to upsert contact: %w", err)
	}
	return id, nil
}

// AccessLevel is contact for strangers, lead once registered and client
// when a course has been bought.
func (s *PostgresStorage) AccessLevel(ctx context.Context, telegramID int64) (quiz.AccessLevel, error) {
	const query = `SELECT is_client FROM students WHERE telegram_id = $1`

	var isClient bool
	err := s.db.GetContext(ctx, &isClient, query, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.AccessContact, nil
	}
	if err != nil {
		return quiz.AccessContact, fmt.Errorf("failed to get access level: %w", err)
	}
	if isClient {
		return quiz.AccessClient, nil
	}
	return quiz.AccessLead, nil
}

func (s *PostgresStorage) IsRegistered(ctx context.Context, telegramID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM students WHERE telegram_id = $1)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, telegramID); err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) PhoneExists(ctx context.Context, phone string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM students WHERE phone = $1)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, phone); err != nil {
		return false, fmt.Errorf("failed to check phone: %w", err)
	}
	return exists, nil
}

// CreateRegistration stores the student, marks the contact as registered and
// moves the contact's pending course interests onto the new student, all in
// one transaction.
func (s *PostgresStorage) CreateRegistration(ctx context.Context, reg Registration) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	contactID, err := upsertContact(ctx, tx, reg.TelegramID, reg.Username)
	if err != nil {
		return 0, err
	}

	const insertStudent = `
        INSERT INTO students (
            telegram_id, contact_id, first_name, city, language,
            phone, games, longitude, latitude
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	var studentID int64
	err = tx.QueryRowxContext(ctx, insertStudent,
		reg.TelegramID,
		contactID,
		reg.FirstName,
		reg.City,
		reg.Language,
		reg.Phone,
		pq.Array(reg.Games),
		reg.Longitude,
		reg.Latitude,
	).Scan(&studentID)
	if err != nil {
		return 0, classifyStudentError(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE contacts SET is_registered = TRUE WHERE id = $1`, contactID); err != nil {
		return 0, fmt.Errorf("failed to mark contact registered: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE course_interests SET student_id = $1 WHERE contact_id = $2 AND student_id IS NULL`,
		studentID, contactID)
	if err != nil {
		return 0, fmt.Errorf("failed to migrate course interests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit registration: %w", err)
	}

	moved, _ := res.RowsAffected()
	s.logger.Info("Registration created",
		zap.Int64("telegram_id", reg.TelegramID),
		zap.Int64("student_id", studentID),
		zap.Int64("course_interests_moved", moved))

	return studentID, nil
}

func classifyStudentError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "students_phone_key":
			return ErrPhoneTaken
		case "students_telegram_id_key":
			return ErrAlreadyRegistered
		}
	}
	return fmt.Errorf("failed to insert student: %w", err)
}

// ListForms returns published forms open to the given level.
func (s *PostgresStorage) ListForms(ctx context.Context, level quiz.AccessLevel) ([]FormSummary, error) {
	const query = `
        SELECT id, name, one_off, access_level
        FROM forms
        WHERE published AND access_level <= $1
        ORDER BY id
    `
	var forms []FormSummary
	if err := s.db.SelectContext(ctx, &forms, query, int(level)); err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return forms, nil
}

// GetForm loads a published form with its questions ordered by position and
// answers nested under them.
func (s *PostgresStorage) GetForm(ctx context.Context, formID int64) (*quiz.Form, error) {
	var fr formRow
	err := s.db.GetContext(ctx, &fr, `
        SELECT id, name, mode, one_off, access_level, finish_text
        FROM forms
        WHERE id = $1 AND published
    `, formID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	var questions []questionRow
	if err := s.db.SelectContext(ctx, &questions, `
        SELECT id, form_id, position, text, image, multi_answer,
               custom_answer, accepts_file, one_row_buttons
        FROM questions
        WHERE form_id = $1
        ORDER BY position, id
    `, formID); err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}

	var answers []answerRow
	if err := s.db.SelectContext(ctx, &answers, `
        SELECT a.id, a.question_id, a.text, a.is_correct, a.jump_to
        FROM answers a
        JOIN questions q ON q.id = a.question_id
        WHERE q.form_id = $1
        ORDER BY a.question_id, a.id
    `, formID); err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}

	return assembleForm(fr, questions, answers), nil
}

func assembleForm(fr formRow, questions []questionRow, answers []answerRow) *quiz.Form {
	form := &quiz.Form{
		ID:          fr.ID,
		Name:        fr.Name,
		Mode:        quiz.Mode(fr.Mode),
		OneOff:      fr.OneOff,
		AccessLevel: quiz.AccessLevel(fr.AccessLevel),
		FinishText:  fr.FinishText,
		Questions:   make([]quiz.Question, 0, len(questions)),
	}

	byQuestion := make(map[int64][]quiz.Answer, len(questions))
	for _, a := range answers {
		ans := quiz.Answer{
			ID:         a.ID,
			QuestionID: a.QuestionID,
			Text:       a.Text,
			IsCorrect:  a.IsCorrect,
		}
		if a.JumpTo.Valid {
			target := a.JumpTo.Int64
			ans.JumpTo = &target
		}
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], ans)
	}

	for _, q := range questions {
		form.Questions = append(form.Questions, quiz.Question{
			ID:            q.ID,
			FormID:        q.FormID,
			Position:      q.Position,
			Text:          q.Text,
			Image:         q.Image,
			MultiAnswer:   q.MultiAnswer,
			CustomAnswer:  q.CustomAnswer,
			AcceptsFile:   q.AcceptsFile,
			OneRowButtons: q.OneRowButtons,
			Answers:       byQuestion[q.ID],
		})
	}
	form.Sort()
	return form
}

func (s *PostgresStorage) HasResult(ctx context.Context, telegramID, formID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM form_results WHERE telegram_id = $1 AND form_id = $2)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, telegramID, formID); err != nil {
		return false, fmt.Errorf("failed to check result: %w", err)
	}
	return exists, nil
}

// SaveResult keeps one result per (user, form); a retake of a repeatable
// form replaces the previous one.
func (s *PostgresStorage) SaveResult(ctx context.Context, r Result) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	const query = `
        INSERT INTO form_results (telegram_id, form_id, score, answers)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (telegram_id, form_id) DO UPDATE
            SET score = EXCLUDED.score,
                answers = EXCLUDED.answers,
                created_at = NOW()
    `
	if _, err := s.db.ExecContext(ctx, query, r.TelegramID, r.FormID, r.Score, string(answers)); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}
