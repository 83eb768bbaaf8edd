package auth

// Claims representa la identidad autenticada del puesto. En entorno de
// login compartido el UserID identifica la cuenta, no necesariamente al
// clínico que actúa (eso lo resuelve la atribución de auditoría).
type Claims struct {
	UserID      string
	DisplayName string
	Role        string
}
