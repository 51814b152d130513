// Package dummydb is an in-memory storage backend for tests.
package dummydb

import (
	"sync"

	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/badge"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/syncop"
	"github.com/akela-hq/akela/core/unit"
	"github.com/akela-hq/akela/core/user"
)

type DB struct {
	sync.RWMutex

	users       map[string]*user.User
	units       map[string]*unit.Unit
	memberships map[string]*unit.Membership // key unitID|userID
	members     map[string]*member.Member
	guardians   map[string]*member.Guardian
	links       map[string]*member.GuardianLink // key memberID|guardianID
	meetings    map[string]*meeting.Meeting
	attendance  map[string]*meeting.Attendance // key meetingID|memberID
	badges      map[string]*badge.Badge
	awards      map[string]*badge.Award // key memberID|badgeID
	anns        map[string]*announce.Announcement
	deliveries  map[string][]announce.Delivery // key announcementID
	syncOps     map[string]*syncop.AppliedOp
}

func Open() (*DB, error) {
	return &DB{
		users:       make(map[string]*user.User),
		units:       make(map[string]*unit.Unit),
		memberships: make(map[string]*unit.Membership),
		members:     make(map[string]*member.Member),
		guardians:   make(map[string]*member.Guardian),
		links:       make(map[string]*member.GuardianLink),
		meetings:    make(map[string]*meeting.Meeting),
		attendance:  make(map[string]*meeting.Attendance),
		badges:      make(map[string]*badge.Badge),
		awards:      make(map[string]*badge.Award),
		anns:        make(map[string]*announce.Announcement),
		deliveries:  make(map[string][]announce.Delivery),
		syncOps:     make(map[string]*syncop.AppliedOp),
	}, nil
}

func key(a, b string) string { return a + "|" + b }
