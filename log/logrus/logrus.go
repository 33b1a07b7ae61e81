// Package logrus adapts a *logrus.Entry to flagcache.Logger.
//
// Refresh-loop failures carry the cause under the "err" field; the adapter
// moves it to logrus.ErrorKey.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/flagcache"
)

var _ flagcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f flagcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f flagcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f flagcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f flagcache.Fields) { l.with(f).Error(msg) }

func (l LogrusLogger) with(f flagcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
