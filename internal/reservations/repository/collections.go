package repository

const (
	ReservationsCollection    = "reservations"
	ServicesCollection        = "services"
	ResourcesCollection       = "resources"
	BlackoutsCollection       = "blackouts"
	ClientStandingsCollection = "client_standings"
	CustomersCollection       = "customers"
	DayLocksCollection        = "reservation_day_locks"

	// SlotIndexName is the partial unique index every active reservation is
	// checked against.
	SlotIndexName = "uniq_active_slot"
)
