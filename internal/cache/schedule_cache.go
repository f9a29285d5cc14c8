// Package cache holds a bounded LRU of day schedules so availability reads
// do not hit the database on every request. Entries are evicted explicitly
// whenever the booking or generation path mutates a day.
package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/domain/schedule"
)

type ScheduleCache struct {
	cache *lru.Cache[string, *schedule.DoctorSchedule]
	log   *zap.Logger
}

func NewScheduleCache(size int, log *zap.Logger) (*ScheduleCache, error) {
	c, err := lru.New[string, *schedule.DoctorSchedule](size)
	if err != nil {
		return nil, fmt.Errorf("creating schedule cache: %w", err)
	}
	return &ScheduleCache{cache: c, log: log}, nil
}

func Key(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + date.Format("2006-01-02")
}

func (c *ScheduleCache) Get(doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, bool) {
	sched, ok := c.cache.Get(Key(doctorID, date))
	if !ok {
		return nil, false
	}
	return sched, true
}

func (c *ScheduleCache) Put(sched *schedule.DoctorSchedule) {
	c.cache.Add(Key(sched.DoctorID, sched.Date), sched)
}

// Invalidate drops the cached day. Called after every slot mutation for the
// key; a stale booked flag here would let the handler show free slots that
// are already taken.
func (c *ScheduleCache) Invalidate(doctorID uuid.UUID, date time.Time) {
	if c.cache.Remove(Key(doctorID, date)) {
		c.log.Debug("schedule cache invalidated",
			zap.String("doctor_id", doctorID.String()),
			zap.String("date", date.Format("2006-01-02")),
		)
	}
}

func (c *ScheduleCache) Len() int {
	return c.cache.Len()
}
