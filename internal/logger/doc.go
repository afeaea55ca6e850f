// Package logger provides component-scoped structured logging on top of
// logrus.
//
// Loggers are built once from LogConfig and passed down explicitly:
//
//	log, closer, err := logger.Build(cfg)
//	defer closer.Close()
//
//	res := log.WithComponent(logger.ComponentResolver)
//	res.Info("resolving stream", map[string]interface{}{
//		"video_id": id,
//	})
//
// Components can be switched on and off individually; disabled components
// cost one map lookup per call. Output goes to stdout, stderr, nowhere, or a
// file ("file:/var/log/streamproxy.log") rotated by size and age.
package logger
