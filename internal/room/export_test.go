package room

// SetBeforeExec installs a hook that runs after a Redis mutation's checks
// and before its EXEC.
func (s *RedisStore) SetBeforeExec(fn func(op string)) { s.beforeExec = fn }
