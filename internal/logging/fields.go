package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// PackageFields 提供命令包相关字段，供解析/安装/执行日志复用。
func PackageFields(command, pkg, version string, cached bool) logrus.Fields {
	return logrus.Fields{
		"command":   command,
		"package":   pkg,
		"version":   version,
		"cache_hit": cached,
	}
}
