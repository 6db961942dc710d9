package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tgstream/internal/api"
	"tgstream/internal/link"
	"tgstream/internal/model"
	"tgstream/internal/users"
)

const (
	textGreeting     = "Hi %s! Send me a file and I will give you a permanent link to it."
	textInvalidLink  = "Invalid or expired link!"
	textVerified     = "%s, verified successfully!"
	textNotVerified  = "You are not verified! Kindly verify to continue."
	textFileNotFound = "File not found. The link may be broken."
	textLink         = "Here is your link:\n\n%s"
	textShortLink    = "Here is your link:\n\nShort link: %s"
	textNeedReply    = "Reply to a message to get a shareable link."
	textNoPermission = "You are not allowed to create links."
	textAPISaved     = "Shortener API key saved."
	textAPICurrent   = "Current shortener API key: %s\n\nUse /api <key> to change it."
	textBaseSaved    = "Shortener site set to %s."
	textBaseCleared  = "Shortener settings removed."
	textBaseInvalid  = "Invalid domain: %s"
	textFailed       = "Something went wrong, please try again later."
)

func (h *Handler) start(ctx context.Context, in Incoming, payload string) error {
	created, err := h.Users.AddUser(ctx, in.From.ID, in.From.AccessHash, in.From.FirstName)
	if err != nil {
		return err
	}
	if created {
		h.log.Info("new user", "user_id", in.From.ID, "name", in.From.FirstName)
	}

	if payload == "" {
		return h.Messenger.Send(ctx, in.From, fmt.Sprintf(textGreeting, in.From.FirstName))
	}

	p, err := link.ParsePayload(payload)
	if err != nil {
		return h.Messenger.Send(ctx, in.From, textInvalidLink)
	}

	switch p.Kind {
	case link.PayloadVerify:
		return h.redeem(ctx, in.From, p)
	default:
		return h.deliver(ctx, in.From, p.MessageID)
	}
}

func (h *Handler) redeem(ctx context.Context, u User, p link.Payload) error {
	if h.Verifier == nil || p.UserID != u.ID {
		return h.Messenger.Send(ctx, u, textInvalidLink)
	}
	ok, err := h.Verifier.Redeem(ctx, u.ID, p.Token)
	if err != nil {
		return err
	}
	if !ok {
		return h.Messenger.Send(ctx, u, textInvalidLink)
	}
	return h.Messenger.Send(ctx, u, fmt.Sprintf(textVerified, u.FirstName))
}

// gate проверяет подтверждение пользователя. Если он не подтверждён,
// отправляет ему ссылку подтверждения и возвращает false.
func (h *Handler) gate(ctx context.Context, u User) (bool, error) {
	if !h.cfg.Verify {
		return true, nil
	}
	ok, err := h.Verifier.Verified(ctx, u.ID)
	if err != nil || ok {
		return ok, err
	}

	token, err := h.Verifier.Issue(ctx, u.ID)
	if err != nil {
		return false, err
	}
	verifyURL := h.cfg.Links.Bot(link.EncodeVerify(u.ID, token))
	if h.cfg.VerifyShortURL != "" && h.cfg.VerifyShortAPI != "" {
		verifyURL = h.Shortener.Shorten(ctx, h.cfg.VerifyShortURL, h.cfg.VerifyShortAPI, verifyURL)
	}

	rows := [][]Button{{{Text: "Verify", URL: verifyURL}}}
	if h.cfg.VerifyTutorial != "" {
		rows = append(rows, []Button{{Text: "How To Open & Verify", URL: h.cfg.VerifyTutorial}})
	}
	return false, h.Messenger.Send(ctx, u, textNotVerified, rows...)
}

func (h *Handler) deliver(ctx context.Context, u User, messageID int) error {
	ok, err := h.gate(ctx, u)
	if err != nil || !ok {
		return err
	}

	f, err := h.Files.Describe(ctx, messageID)
	if errors.Is(err, model.ErrNotFound) {
		return h.Messenger.Send(ctx, u, textFileNotFound)
	}
	if err != nil {
		return err
	}

	var rows [][]Button
	if h.cfg.StreamMode && (f.Kind == model.MediaVideo || f.Kind == model.MediaDocument) {
		name := api.FileName(f.FileDescriptor)
		rows = [][]Button{{
			{Text: "• Download •", URL: h.cfg.Links.Download(f.MessageID, name, f.Hash())},
			{Text: "• Watch •", URL: h.cfg.Links.Watch(f.MessageID, name, f.Hash())},
		}}
	}
	return h.Messenger.Deliver(ctx, u, f.MessageID, h.caption(f.FileDescriptor), rows...)
}

// caption собирает подпись к выдаваемому файлу по шаблону
// с подстановками {file_name}, {file_size} и {file_caption}.
func (h *Handler) caption(d *model.FileDescriptor) string {
	name := d.FileName
	if name == "" {
		name = api.FileName(d)
	}
	title := cleanTitle(name)
	if h.cfg.FileCaption == "" {
		return title
	}
	return strings.NewReplacer(
		"{file_name}", title,
		"{file_size}", link.Size(d.Size),
		"{file_caption}", "",
	).Replace(h.cfg.FileCaption)
}

// cleanTitle убирает из имени файла скобки и слова-ссылки.
func cleanTitle(name string) string {
	name = strings.NewReplacer("[", "", "]", "", "(", "", ")", "").Replace(name)
	var words []string
	for _, w := range strings.Fields(name) {
		if strings.HasPrefix(w, "http") || strings.HasPrefix(w, "@") || strings.HasPrefix(w, "www.") {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

// share архивирует сообщение и отвечает ссылкой на него.
func (h *Handler) share(ctx context.Context, u User, messageID int) error {
	archived, err := h.Messenger.Archive(ctx, u, messageID)
	if err != nil {
		h.log.Error("archive message failed", "user_id", u.ID, "message_id", messageID, "error", err)
		return h.Messenger.Send(ctx, u, textFailed)
	}

	shareURL := h.cfg.Links.Share(link.EncodeFile(archived))

	user, err := h.Users.GetUser(ctx, u.ID)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		return err
	}
	if user.Shortener() {
		short := h.Shortener.Shorten(ctx, user.BaseSite, user.ShortenerAPI, shareURL)
		return h.Messenger.Send(ctx, u, fmt.Sprintf(textShortLink, short))
	}
	return h.Messenger.Send(ctx, u, fmt.Sprintf(textLink, shareURL))
}

func (h *Handler) linkReply(ctx context.Context, in Incoming) error {
	if !h.allowed(in.From) {
		return h.Messenger.Send(ctx, in.From, textNoPermission)
	}
	if in.ReplyTo == 0 {
		return h.Messenger.Send(ctx, in.From, textNeedReply)
	}
	return h.share(ctx, in.From, in.ReplyTo)
}

// ensureUser возвращает запись пользователя, регистрируя его при необходимости.
func (h *Handler) ensureUser(ctx context.Context, u User) (users.User, error) {
	if _, err := h.Users.AddUser(ctx, u.ID, u.AccessHash, u.FirstName); err != nil {
		return users.User{}, err
	}
	return h.Users.GetUser(ctx, u.ID)
}

func (h *Handler) setAPI(ctx context.Context, in Incoming, key string) error {
	user, err := h.ensureUser(ctx, in.From)
	if err != nil {
		return err
	}
	if key == "" {
		current := user.ShortenerAPI
		if current == "" {
			current = "none"
		}
		return h.Messenger.Send(ctx, in.From, fmt.Sprintf(textAPICurrent, current))
	}
	if err := h.Users.UpdateShortener(ctx, in.From.ID, key, user.BaseSite); err != nil {
		return err
	}
	return h.Messenger.Send(ctx, in.From, textAPISaved)
}

func (h *Handler) setBaseSite(ctx context.Context, in Incoming, site string) error {
	user, err := h.ensureUser(ctx, in.From)
	if err != nil {
		return err
	}
	if site == "" {
		if err := h.Users.UpdateShortener(ctx, in.From.ID, "", ""); err != nil {
			return err
		}
		return h.Messenger.Send(ctx, in.From, textBaseCleared)
	}
	if !isDomain(site) {
		return h.Messenger.Send(ctx, in.From, fmt.Sprintf(textBaseInvalid, site))
	}
	if err := h.Users.UpdateShortener(ctx, in.From.ID, user.ShortenerAPI, strings.ToLower(site)); err != nil {
		return err
	}
	return h.Messenger.Send(ctx, in.From, fmt.Sprintf(textBaseSaved, site))
}

// isDomain проверяет, что строка похожа на доменное имя: метки из букв,
// цифр и дефисов, разделённые точками, и хотя бы одна точка.
func isDomain(s string) bool {
	if len(s) > 253 || !strings.Contains(s, ".") {
		return false
	}
	for label := range strings.SplitSeq(s, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			ok := c == '-' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
			if !ok {
				return false
			}
		}
	}
	return true
}
