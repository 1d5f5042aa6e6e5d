// Package logx provides the bot's structured logging facade.
//
// It wraps zerolog with a Service that can swap sinks (console, file,
// chat) at runtime without invalidating loggers already handed out.
package logx
