package assessment

// CanComplete reports whether the user may force early completion of the
// session. The server stays authoritative and may still reject the attempt.
func CanComplete(s Snapshot) bool {
	return s.Status == StatusActive &&
		s.QuestionCount >= MinQuestionsForCompletion &&
		s.CanComplete
}
