package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"hostelpay/internal/models"
)

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// occupiedQuery counts bookings holding a room over [check_in, check_out).
// A pending booking only holds the room while one of its attempts is active.
const occupiedQuery = `
	SELECT COUNT(*) FROM bookings b
	WHERE b.hostel_id = ? AND b.room_id = ?
	  AND b.check_in < ? AND b.check_out > ?
	  AND (
		b.payment_status IN ('partial', 'paid')
		OR (b.payment_status = 'pending' AND EXISTS (
			SELECT 1 FROM payment_attempts a
			WHERE a.booking_id = b.id AND a.status IN ('initiated', 'pending')
		))
	  )`

// SetRooms replaces the room catalog.
func (db *DB) SetRooms(rooms []models.Room) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rooms = make(map[string]models.Room, len(rooms))
	for _, room := range rooms {
		db.rooms[room.Key()] = room
	}
}

func (db *DB) GetRoom(hostelID, roomID string) (models.Room, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	room, ok := db.rooms[models.Room{HostelID: hostelID, RoomID: roomID}.Key()]
	return room, ok
}

func (db *DB) ListRooms() []models.Room {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rooms := make([]models.Room, 0, len(db.rooms))
	for _, room := range db.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Key() < rooms[j].Key() })
	return rooms
}

func (db *DB) catalogEmpty() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.rooms) == 0
}

// CountOccupied returns how many bookings hold the room in the date range.
func (db *DB) CountOccupied(ctx context.Context, hostelID, roomID string, checkIn, checkOut time.Time) (int, error) {
	return countOccupied(ctx, db, hostelID, roomID, checkIn, checkOut)
}

// CheckRoomAvailability reports whether one more booking fits the room.
// Without a configured catalog every room is accepted.
func (db *DB) CheckRoomAvailability(ctx context.Context, hostelID, roomID string, checkIn, checkOut time.Time) (bool, error) {
	return db.checkAvailability(ctx, db, hostelID, roomID, checkIn, checkOut)
}

func (db *DB) checkAvailability(ctx context.Context, q queryRower, hostelID, roomID string, checkIn, checkOut time.Time) (bool, error) {
	if db.catalogEmpty() {
		return true, nil
	}
	room, ok := db.GetRoom(hostelID, roomID)
	if !ok || !room.IsActive {
		return false, fmt.Errorf("%w: %s/%s", ErrRoomNotFound, hostelID, roomID)
	}
	if room.Capacity == 0 {
		return true, nil
	}
	count, err := countOccupied(ctx, q, hostelID, roomID, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return int64(count) < room.Capacity, nil
}

func countOccupied(ctx context.Context, q queryRower, hostelID, roomID string, checkIn, checkOut time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, occupiedQuery,
		hostelID, roomID,
		checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count occupied bookings: %w", err)
	}
	return count, nil
}
