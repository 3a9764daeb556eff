package domain

// Actor — пользователь, от имени которого выполняется операция. Нулевое значение означает анонимный запрос.
type Actor struct {
	UserID  int64
	IsStaff bool
}

// Authenticated сообщает, что запрос выполняет вошедший пользователь.
func (a Actor) Authenticated() bool {
	return a.UserID > 0
}
