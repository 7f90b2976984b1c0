package log

import "log/slog"

func TransactionID[T ~string](id T) slog.Attr {
	return slog.String("transaction_id", string(id))
}

func MessageID(id string) slog.Attr {
	return slog.String("message_id", id)
}

func Action[T ~string](action T) slog.Attr {
	return slog.String("action", string(action))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func URL(url string) slog.Attr {
	return slog.String("url", url)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
