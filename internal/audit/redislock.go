// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAcquireScript is a SETNX-with-owner-token pattern: acquire only if the
// key is absent or already owned by this token, release only if still
// owned by this token. Mirrors the teacher's SETNX-then-EXPIRE idempotency
// marker shape, adapted here from "mark a commit applied" to "hold a lock".
const redisAcquireScript = `
local key = KEYS[1]
local token = ARGV[1]
local ttlMs = tonumber(ARGV[2])
local current = redis.call('GET', key)
if current == false or current == token then
  redis.call('SET', key, token, 'PX', ttlMs)
  return 1
end
return 0
`

const redisReleaseScript = `
local key = KEYS[1]
local token = ARGV[1]
if redis.call('GET', key) == token then
  redis.call('DEL', key)
end
return 0
`

// RedisLock implements Lock against a redis/go-redis/v9 client.
type RedisLock struct {
	client *redis.Client
	token  string
}

// NewRedisLock constructs a lock bound to client, identifying this
// supervisor instance with token (e.g. its PID).
func NewRedisLock(client *redis.Client, token string) *RedisLock {
	return &RedisLock{client: client, token: token}
}

// TryAcquire implements Lock.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res, err := l.client.Eval(ctx, redisAcquireScript, []string{key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	acquired, _ := res.(int64)
	return acquired == 1, nil
}

// Release implements Lock.
func (l *RedisLock) Release(ctx context.Context, key string) error {
	_, err := l.client.Eval(ctx, redisReleaseScript, []string{key}, l.token).Result()
	return err
}
