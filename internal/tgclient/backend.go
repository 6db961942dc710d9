package tgclient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"golang.org/x/time/rate"

	"tgstream/internal/backend"
	"tgstream/internal/model"
)

var _ backend.Backend = (*Client)(nil)

// homeKey: ключ аккаунта в домашнем дата-центре, им владеет основной клиент.
type homeKey struct{ dc int }

func (k homeKey) DC() int { return k.dc }

// freshKey: новый ключ для чужого дата-центра. Сам обмен ключами
// происходит при подключении отдельного клиента в StartSession.
type freshKey struct{ dc int }

func (k freshKey) DC() int { return k.dc }

func (c *Client) HomeDC() int {
	return c.client.Config().ThisDC
}

func (c *Client) HomeAuthKey() backend.AuthKey {
	return homeKey{dc: c.HomeDC()}
}

func (c *Client) CreateAuthKey(ctx context.Context, dc int) (backend.AuthKey, error) {
	return freshKey{dc: dc}, nil
}

func (c *Client) StartSession(ctx context.Context, dc int, key backend.AuthKey) (backend.Session, error) {
	switch key.(type) {
	case homeKey:
		inv, err := c.client.Pool(c.cfg.PoolSize)
		if err != nil {
			return nil, errors.Wrap(err, "create home pool")
		}
		return &dcSession{dc: dc, api: tg.NewClient(inv), stop: inv.Close}, nil
	case freshKey:
		return c.startForeign(ctx, dc)
	}
	return nil, fmt.Errorf("unknown auth key %T", key)
}

// startForeign поднимает отдельного клиента с пустой сессией в памяти:
// такой клиент при подключении создаёт себе новый ключ.
func (c *Client) startForeign(ctx context.Context, dc int) (*dcSession, error) {
	zlog := c.zlog.Named("dc" + strconv.Itoa(dc))
	waiter := newWaiter(zlog)
	client := telegram.NewClient(c.cfg.AppID, c.cfg.AppHash, telegram.Options{
		DC:             dc,
		Logger:         zlog,
		SessionStorage: new(session.StorageMemory),
		NoUpdates:      true,
		Middlewares: []telegram.Middleware{
			waiter,
			ratelimit.New(rate.Every(rateEvery), rateBurst),
		},
	})

	// сессия живёт дольше ctx запуска, поэтому у неё свой контекст
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- waiter.Run(runCtx, func(ctx context.Context) error {
			return client.Run(ctx, func(ctx context.Context) error {
				close(ready)
				<-ctx.Done()
				return ctx.Err()
			})
		})
	}()

	stop := func() error {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	select {
	case <-ready:
		return &dcSession{dc: dc, api: client.API(), stop: stop}, nil
	case err := <-done:
		cancel()
		return nil, errors.Wrapf(err, "connect to dc %d", dc)
	case <-ctx.Done():
		_ = stop()
		return nil, ctx.Err()
	}
}

func (c *Client) ExportAuthorization(ctx context.Context, dc int) (backend.ExportedAuthorization, error) {
	auth, err := c.api.AuthExportAuthorization(ctx, dc)
	if err != nil {
		return backend.ExportedAuthorization{}, errors.Wrapf(err, "export authorization to dc %d", dc)
	}
	return backend.ExportedAuthorization{ID: auth.ID, Bytes: auth.Bytes}, nil
}

type dcSession struct {
	dc   int
	api  *tg.Client
	stop func() error
}

func (s *dcSession) DC() int { return s.dc }

func (s *dcSession) ImportAuthorization(ctx context.Context, auth backend.ExportedAuthorization) error {
	_, err := s.api.AuthImportAuthorization(ctx, &tg.AuthImportAuthorizationRequest{
		ID:    auth.ID,
		Bytes: auth.Bytes,
	})
	if tgerr.Is(err, "AUTH_BYTES_INVALID") {
		return fmt.Errorf("%w: %w", backend.ErrAuthBytesInvalid, err)
	}
	return err
}

func (s *dcSession) GetFile(ctx context.Context, loc model.Location, offset int64, limit int) ([]byte, error) {
	input, err := inputLocation(loc)
	if err != nil {
		return nil, err
	}
	res, err := s.api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
		Location: input,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	switch r := res.(type) {
	case *tg.UploadFile:
		return r.Bytes, nil
	default:
		// CDN-редирект и прочее мы не обслуживаем
		return nil, fmt.Errorf("%w: %T", backend.ErrUnexpectedResponse, res)
	}
}

func (s *dcSession) Stop() error { return s.stop() }
