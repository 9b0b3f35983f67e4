package flows

import (
	"io"
	"strings"

	"ledgerbot/core/logger"
	tghelpers "ledgerbot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// receiptMime is what Telegram serves for photo-sized receipt images.
const receiptMime = "image/jpeg"

var skipWords = map[string]struct{}{
	"no":         {},
	"skip":       {},
	"no receipt": {},
}

// onReceiptDecision handles the step after an expense is recorded: a photo
// attaches a receipt, a "no receipt" style reply finishes without one, and
// anything else re-prompts.
func (f *Flows) onReceiptDecision(c tele.Context) error {
	if msg := c.Message(); msg != nil && msg.Photo != nil {
		return f.attachReceipt(c, msg.Photo)
	}

	text, ok := textInput(c)
	if ok {
		if _, skip := skipWords[strings.ToLower(text)]; skip {
			f.states.Clear(c.Sender().ID)
			return tghelpers.SendText(c, msgReceiptSkipped)
		}
	}
	return tghelpers.SendMD(c, msgAskReceipt, skipMarkup())
}

// onReceiptSkip is the button variant of the "no receipt" reply.
func (f *Flows) onReceiptSkip(c tele.Context) error {
	f.states.Clear(c.Sender().ID)
	return tghelpers.SendText(c, msgReceiptSkipped)
}

// attachReceipt downloads the photo, resolves its destination folder from
// the recorded category and uploads it. Upload or persist failures keep the
// state so the user can resend the photo.
func (f *Flows) attachReceipt(c tele.Context, photo *tele.Photo) error {
	userID := c.Sender().ID
	ctx := tghelpers.BuildContext(c)

	category, _ := f.states.GetTempString(userID, keyExpenseCategory)
	route := f.resolver.Resolve(category)

	data, err := f.downloadPhoto(c, photo)
	if err != nil {
		logger.Error(ctx, "tg", "receipt.download",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgUploadRetry)
	}

	file, err := f.uploader.Upload(ctx, data, route.FolderID, receiptMime)
	if err != nil {
		logger.Error(ctx, "store", "receipt.upload",
			slog.String("status", "fail"),
			slog.String("category", route.Category),
			slog.String("folder_id", route.FolderID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgUploadRetry)
	}

	if v, ok := f.states.GetTemp(userID, keyExpenseID); ok {
		if expenseID, ok := v.(int64); ok {
			if err := f.store.AttachReceipt(ctx, expenseID, file.PublicLink); err != nil {
				logger.Error(ctx, "ledger", "receipt.attach",
					slog.String("status", "fail"),
					slog.String("file_id", file.FileID),
					slog.String("err", err.Error()),
				)
				return tghelpers.SendText(c, msgUploadRetry)
			}
		}
	}

	logger.Info(ctx, "store", "receipt.stored",
		slog.String("status", "ok"),
		slog.String("category", route.Category),
		slog.String("folder_id", route.FolderID),
		slog.String("file_id", file.FileID),
	)

	f.states.Clear(userID)
	return tghelpers.SendText(c, msgReceiptDone)
}

// downloadPhoto fetches the photo bytes through the bot API.
func (f *Flows) downloadPhoto(c tele.Context, photo *tele.Photo) ([]byte, error) {
	if f.download != nil {
		return f.download(c, photo)
	}
	rc, err := c.Bot().File(&photo.File)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
