package repositories

import "github.com/zatekoja/attendance-relay/internal/domain/entities"

// DetectionRepository is the append-only detection log.
type DetectionRepository interface {
	Append(record *entities.DetectionRecord)

	// Recent returns up to limit of the most recently appended records in
	// append order, together with the number of records retained.
	Recent(limit int) (records []*entities.DetectionRecord, total int)
}
