package log

import "log/slog"

func FlowID[T ~string](id T) slog.Attr {
	return slog.String("flow_id", string(id))
}

func NodeID[T ~string](id T) slog.Attr {
	return slog.String("node_id", string(id))
}

func EdgeID[T ~string](id T) slog.Attr {
	return slog.String("edge_id", string(id))
}

func UserID[T ~string](id T) slog.Attr {
	return slog.String("user_id", string(id))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	return slog.String("error", msg)
}
