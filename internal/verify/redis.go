package verify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenPrefix    = "verify:token:"
	verifiedPrefix = "verify:user:"
)

// takeScript удаляет токен только при совпадении, иначе неверная попытка
// сожгла бы действующий токен.
var takeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis: хранилище в redis, переживает перезапуск процесса.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis подключается к redis и проверяет соединение.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address must be provided")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func tokenKey(uid int64) string    { return tokenPrefix + strconv.FormatInt(uid, 10) }
func verifiedKey(uid int64) string { return verifiedPrefix + strconv.FormatInt(uid, 10) }

func (r *Redis) SetToken(ctx context.Context, uid int64, token string, ttl time.Duration) error {
	return r.client.Set(ctx, tokenKey(uid), token, ttl).Err()
}

func (r *Redis) TakeToken(ctx context.Context, uid int64, token string) (bool, error) {
	n, err := takeScript.Run(ctx, r.client, []string{tokenKey(uid)}, token).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) SetVerified(ctx context.Context, uid int64, ttl time.Duration) error {
	return r.client.Set(ctx, verifiedKey(uid), "1", ttl).Err()
}

func (r *Redis) IsVerified(ctx context.Context, uid int64) (bool, error) {
	err := r.client.Get(ctx, verifiedKey(uid)).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
