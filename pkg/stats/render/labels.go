// Package render turns dashboards into localized chart specs, tables and an
// HTML page.
package render

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownLocale is returned for locales without labels.
var ErrUnknownLocale = errors.New("unknown locale")

// DefaultLocale is the locale used when none is configured.
const DefaultLocale = "ru"

// Labels are the user visible strings of the dashboard. Fields ending with
// Fmt take the ranking size as argument.
type Labels struct {
	Locale string

	Title   string
	Updated string

	// Hourly section
	TodayByHour string
	Hour        string
	Connections string
	Count       string
	GB          string
	Mean        string

	// Column titles
	Username         string
	TrafficGB        string
	ConnectionsCol   string
	TotalConnections string
	LifetimeDays     string
	CreatedAt        string
	UsedTraffic      string
	Node             string
	FirstConn        string
	LastConn         string

	// Today section
	TopTodayFmt       string
	ByConnectionsDay  string
	ByTrafficDay      string
	ByTrafficLastHour string

	// Lifetime section
	Overall             string
	TopByTrafficFmt     string
	TopByConnectionsFmt string
	TopByLifetimeFmt    string
	TopUsersFmt         string
	AntiTopUsersFmt     string
	ByTraffic           string
	ByConnections       string
	ByLifetime          string

	// Raw data section
	RawData       string
	Events        string
	LastHour      string
	HourlyTable   string
	UsersToday    string
	UsersLastHour string
	AllUsers      string
}

var locales = map[string]Labels{
	"ru": {
		Locale:              "ru",
		Title:               "Статистика пользователей",
		Updated:             "Обновлено",
		TodayByHour:         "Сегодня по часам",
		Hour:                "Час",
		Connections:         "Подключений",
		Count:               "Кол-во",
		GB:                  "GB",
		Mean:                "Среднее",
		Username:            "Имя пользователя",
		TrafficGB:           "Трафик (ГБ)",
		ConnectionsCol:      "Подключения",
		TotalConnections:    "Количество подключений",
		LifetimeDays:        "Время жизни (дни)",
		CreatedAt:           "Время",
		UsedTraffic:         "Трафик (байт)",
		Node:                "Нода",
		FirstConn:           "Первое подключение",
		LastConn:            "Последнее подключение",
		TopTodayFmt:         "Топ %d пользователей",
		ByConnectionsDay:    "По подключениям за день",
		ByTrafficDay:        "По траффику за день",
		ByTrafficLastHour:   "По трафику за последний час",
		Overall:             "Общая статистика",
		TopByTrafficFmt:     "Топ %d по траффику",
		TopByConnectionsFmt: "Топ %d по подключениям",
		TopByLifetimeFmt:    "Топ %d по времени жизни",
		TopUsersFmt:         "Топ %d Пользователей",
		AntiTopUsersFmt:     "Антитоп %d Пользователей",
		ByTraffic:           "По траффику",
		ByConnections:       "По подключениям",
		ByLifetime:          "По времени жизни",
		RawData:             "Исходные данные",
		Events:              "События за сегодня",
		LastHour:            "События за последний час",
		HourlyTable:         "Подключения по часам",
		UsersToday:          "Пользователи за сегодня",
		UsersLastHour:       "Пользователи за последний час",
		AllUsers:            "Все пользователи",
	},
	"en": {
		Locale:              "en",
		Title:               "User statistics",
		Updated:             "Updated",
		TodayByHour:         "Today by hour",
		Hour:                "Hour",
		Connections:         "Connections",
		Count:               "Count",
		GB:                  "GB",
		Mean:                "Mean",
		Username:            "Username",
		TrafficGB:           "Traffic (GB)",
		ConnectionsCol:      "Connections",
		TotalConnections:    "Total connections",
		LifetimeDays:        "Lifetime (days)",
		CreatedAt:           "Time",
		UsedTraffic:         "Traffic (bytes)",
		Node:                "Node",
		FirstConn:           "First connection",
		LastConn:            "Last connection",
		TopTodayFmt:         "Top %d users",
		ByConnectionsDay:    "By connections today",
		ByTrafficDay:        "By traffic today",
		ByTrafficLastHour:   "By traffic in the last hour",
		Overall:             "Overall",
		TopByTrafficFmt:     "Top %d by traffic",
		TopByConnectionsFmt: "Top %d by connections",
		TopByLifetimeFmt:    "Top %d by lifetime",
		TopUsersFmt:         "Top %d users",
		AntiTopUsersFmt:     "Bottom %d users",
		ByTraffic:           "By traffic",
		ByConnections:       "By connections",
		ByLifetime:          "By lifetime",
		RawData:             "Raw data",
		Events:              "Today's events",
		LastHour:            "Last hour events",
		HourlyTable:         "Connections by hour",
		UsersToday:          "Users today",
		UsersLastHour:       "Users in the last hour",
		AllUsers:            "All users",
	},
}

// LabelsFor returns labels of locale.
func LabelsFor(locale string) (Labels, error) {
	if l, ok := locales[strings.ToLower(locale)]; ok {
		return l, nil
	}

	return Labels{}, fmt.Errorf("%w: %s", ErrUnknownLocale, locale)
}

// Locales returns the supported locales.
func Locales() []string {
	names := make([]string, 0, len(locales))
	for name := range locales {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
