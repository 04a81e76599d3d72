package punctuality

import (
	"github.com/vbl-data/punctuality/config"
	"github.com/vbl-data/punctuality/model"
)

// ClassifyDelay buckets a planned-vs-actual delta in seconds. The
// buckets form a strict partition; boundary values land in the
// lower-adjacent bucket:
//
//	delay <  Early              → early
//	Early <= delay <= Late      → on_time
//	Late  <  delay <= Critical  → late_slight
//	delay >  Critical           → late_severe
func ClassifyDelay(delaySeconds int, th config.Thresholds) model.Bucket {
	switch {
	case delaySeconds < th.Early:
		return model.BucketEarly
	case delaySeconds <= th.Late:
		return model.BucketOnTime
	case delaySeconds <= th.Critical:
		return model.BucketLateSlight
	default:
		return model.BucketLateSevere
	}
}

// admissible applies the outlier policy: when enabled, only delays
// within the configured window enter any statistic. The events stay
// part of their trip either way.
func admissible(delaySeconds int, th config.Thresholds) bool {
	if !th.IgnoreOutliers {
		return true
	}
	return delaySeconds >= th.OutlierMin && delaySeconds <= th.OutlierMax
}
