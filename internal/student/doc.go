// Package student is the durable store for students and everything recorded
// against them: movement records, disciplinary records, canteen visits and
// identity-check scans.
//
// Movement records carry the one invariant the store itself enforces: a
// student has at most one open record. A partial unique index rejects a
// second open insert, and UpdateOpenMovementRecord closes a record with a
// conditional update so two concurrent check-ins cannot both succeed.
//
//	repo := student.NewSQLRepository(db)
//	s, err := repo.FindStudent(ctx, "R100")
//	err = repo.AppendMovementRecord(ctx, &student.MovementRecord{RollNo: "R100", OutTime: at, RecordedBy: "security_a"})
package student
