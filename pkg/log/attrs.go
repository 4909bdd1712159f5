package log

import "log/slog"

func Tenant[T ~string](tenant T) slog.Attr {
	return slog.String("tenant", string(tenant))
}

func SessionKey[T ~string](key T) slog.Attr {
	return slog.String("session_key", string(key))
}

func TraceID[T ~string](id T) slog.Attr {
	return slog.String("trace_id", string(id))
}

func PackID[T ~string](id T) slog.Attr {
	return slog.String("pack_id", string(id))
}

func Flow[T ~string](flow T) slog.Attr {
	return slog.String("flow", string(flow))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
