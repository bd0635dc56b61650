package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/timshannon/badgerhold/v4"
)

// badgerEntry is keyed by a badger sequence, which starts at 0. Row ids
// handed out are the key plus one, matching SQLite's AUTOINCREMENT.
type badgerEntry struct {
	ID           uint64 `badgerhold:"key"`
	JobID        string `badgerhold:"index"`
	URL          string
	Format       string
	Title        *string
	Uploader     *string
	Status       string
	StartedAt    time.Time
	Finished     bool
	EndedAt      time.Time
	FilePath     *string
	ErrorCode    *string
	ErrorMessage *string
}

func (b badgerEntry) entry() (Entry, error) {
	jobID, err := uuid.Parse(b.JobID)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:           rowID(b.ID),
		JobID:        jobID,
		URL:          b.URL,
		Format:       model.AudioFormat(b.Format),
		Title:        b.Title,
		Uploader:     b.Uploader,
		Status:       model.ParseJobStatus(b.Status),
		StartedAt:    b.StartedAt,
		FilePath:     b.FilePath,
		ErrorCode:    b.ErrorCode,
		ErrorMessage: b.ErrorMessage,
	}
	if b.Finished {
		ended := b.EndedAt
		e.EndedAt = &ended
	}
	return e, nil
}

// Badger is a Store kept in an embedded Badger directory.
type Badger struct {
	store *badgerhold.Store
}

var _ Store = (*Badger)(nil)

func OpenBadger(dir string) (*Badger, error) {
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, storeErr("opening badger database", err)
	}
	return &Badger{store: store}, nil
}

func (s *Badger) RecordQueued(_ context.Context, jobID uuid.UUID, url string, format model.AudioFormat) (int64, error) {
	rec := badgerEntry{
		JobID:     jobID.String(),
		URL:       url,
		Format:    format.String(),
		Status:    model.JobStatusQueued.String(),
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.Insert(badgerhold.NextSequence(), &rec); err != nil {
		return 0, storeErr("inserting entry", err)
	}
	return rowID(rec.ID), nil
}

func rowID(key uint64) int64 {
	return int64(key) + 1
}

func (s *Badger) UpdateMetadata(_ context.Context, jobID uuid.UUID, title, uploader *string) error {
	rec, err := s.find(jobID)
	if err != nil {
		return err
	}
	if title != nil {
		rec.Title = title
	}
	if uploader != nil {
		rec.Uploader = uploader
	}
	if err := s.store.Update(rec.ID, &rec); err != nil {
		return storeErr("updating entry", err)
	}
	return nil
}

func (s *Badger) MarkCompleted(_ context.Context, jobID uuid.UUID, status model.JobStatus, filePath, errorCode, errorMessage *string) error {
	rec, err := s.find(jobID)
	if err != nil {
		return err
	}
	if rec.Finished {
		return ErrAlreadyFinished
	}
	rec.Status = status.String()
	rec.Finished = true
	rec.EndedAt = time.Now().UTC()
	rec.FilePath = filePath
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage
	if err := s.store.Update(rec.ID, &rec); err != nil {
		return storeErr("updating entry", err)
	}
	return nil
}

func (s *Badger) Get(_ context.Context, jobID uuid.UUID) (Entry, error) {
	rec, err := s.find(jobID)
	if err != nil {
		return Entry{}, err
	}
	e, err := rec.entry()
	if err != nil {
		return Entry{}, storeErr("decoding entry", err)
	}
	return e, nil
}

func (s *Badger) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var recs []badgerEntry
	query := badgerhold.Where("JobID").Ne("").SortBy("StartedAt").Reverse().Limit(limit)
	if err := s.store.Find(&recs, query); err != nil {
		return nil, storeErr("finding entries", err)
	}
	out := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := rec.entry()
		if err != nil {
			return nil, storeErr("decoding entry", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Badger) PruneBefore(_ context.Context, t time.Time) (int, error) {
	query := badgerhold.Where("Finished").Eq(true).And("EndedAt").Lt(t.UTC())
	n, err := s.store.Count(&badgerEntry{}, query)
	if err != nil {
		return 0, storeErr("counting entries", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.store.DeleteMatching(&badgerEntry{}, query); err != nil {
		return 0, storeErr("deleting entries", err)
	}
	return int(n), nil
}

func (s *Badger) Close() error {
	return s.store.Close()
}

func (s *Badger) find(jobID uuid.UUID) (badgerEntry, error) {
	var recs []badgerEntry
	err := s.store.Find(&recs, badgerhold.Where("JobID").Eq(jobID.String()).Index("JobID"))
	switch {
	case errors.Is(err, badgerhold.ErrNotFound), err == nil && len(recs) == 0:
		return badgerEntry{}, ErrNotFound
	case err != nil:
		return badgerEntry{}, storeErr("finding entry", err)
	}
	return recs[0], nil
}
