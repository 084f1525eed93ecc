package repositories

var (
	_ MessageRepository = (*MessageRepo)(nil)
	_ UserRepository    = (*UserRepo)(nil)
	_ UserWriter        = (*UserRepo)(nil)
	_ MessageRepository = (*GormStore)(nil)
	_ UserRepository    = (*GormStore)(nil)
	_ UserWriter        = (*GormStore)(nil)
)
