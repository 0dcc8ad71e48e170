package xslog

import "log/slog"

func Error(err error) slog.Attr {
	const errorKey = "error"
	if err == nil {
		return slog.String(errorKey, "<nil>")
	}
	return slog.String(errorKey, err.Error())
}
