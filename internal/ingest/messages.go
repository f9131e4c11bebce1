package ingest

import (
	"fmt"
	"strings"
	"time"

	"field-visit-bot/internal/policy"
	"field-visit-bot/internal/repo"
	"field-visit-bot/internal/visit"
)

const replyTimeLayout = "02.01.2006 15:04"

const (
	msgTemporaryFailure = "Şu anda işleminizi gerçekleştiremiyoruz. Lütfen birkaç dakika sonra tekrar deneyin."
	msgSaveFailed       = "Konumunuz kaydedilemedi. Lütfen birkaç dakika sonra tekrar gönderin."
	msgInvalidLocation  = "Gönderdiğiniz konum okunamadı. Lütfen konumunuzu tekrar paylaşın."
	msgRoleExcluded     = "Ziyaret kaydı yalnızca saha ekibi içindir; müşteri hesapları bu özelliği kullanamaz."
	msgNotPermitted     = "Bu komutu yalnızca yöneticiler kullanabilir."
	msgCountUnavailable = "Ziyaret sayısı şu anda alınamıyor. Lütfen daha sonra tekrar deneyin."
	msgHelp             = "Ziyaretinizi kaydetmek için bulunduğunuz konumu paylaşın.\nKomutlar: /start, /status"
	msgAdminHelp        = "\nYönetici komutları: /count"
)

func rejectionMessage(reason policy.Reason, chatUserID int64) string {
	switch reason {
	case policy.ReasonRoleExcluded:
		return msgRoleExcluded
	case policy.ReasonInactive:
		return fmt.Sprintf("Hesabınız pasif durumda. Yeniden etkinleştirmek için yöneticinize başvurun ve şu numarayı iletin: %d", chatUserID)
	default:
		return fmt.Sprintf("Bu botu kullanma yetkiniz bulunmuyor. Erişim için yöneticinize başvurun ve şu numarayı iletin: %d", chatUserID)
	}
}

func ackMessage(rec visit.Record, loc *time.Location) string {
	return fmt.Sprintf("Ziyaretiniz kaydedildi.\nZaman: %s\nKonum: %s",
		rec.OccurredAt.In(loc).Format(replyTimeLayout), rec.MapLink)
}

func startMessage(ev visit.CommandEvent, d policy.Decision) string {
	name := strings.TrimSpace(ev.DisplayName)
	if d.Account != nil && strings.TrimSpace(d.Account.DisplayName) != "" {
		name = strings.TrimSpace(d.Account.DisplayName)
	}
	greeting := "Merhaba!"
	if name != "" {
		greeting = fmt.Sprintf("Merhaba %s!", name)
	}
	if !d.Allowed {
		return greeting + "\n" + rejectionMessage(d.Reason, ev.ChatUserID)
	}
	return greeting + "\n" + helpMessage(d)
}

func statusMessage(ev visit.CommandEvent, d policy.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sohbet numaranız: %d\n", ev.ChatUserID)
	if d.Account == nil {
		b.WriteString("Kayıtlı bir hesaba bağlı değilsiniz.\n")
	} else {
		fmt.Fprintf(&b, "Ad: %s\n", displayOr(d.Account.DisplayName, ev.DisplayName))
		fmt.Fprintf(&b, "Rol: %s\n", roleLabel(d.Account.Role))
		fmt.Fprintf(&b, "Hesap durumu: %s\n", activeLabel(d.Account.Active))
	}
	if d.Allowed {
		b.WriteString("Ziyaret kaydı: açık")
	} else {
		b.WriteString("Ziyaret kaydı: kapalı")
	}
	return b.String()
}

func helpMessage(d policy.Decision) string {
	if d.Allowed && d.Account != nil && policy.IsAdmin(d.Account.Role) {
		return msgHelp + msgAdminHelp
	}
	return msgHelp
}

func countMessage(n int64, sinkName string) string {
	return fmt.Sprintf("Toplam kayıtlı ziyaret: %d (%s)", n, sinkName)
}

func roleLabel(role repo.Role) string {
	switch role {
	case repo.RoleSuperAdmin:
		return "Süper yönetici"
	case repo.RoleModeratorAdmin:
		return "Moderatör"
	case repo.RoleSalesRep:
		return "Saha temsilcisi"
	case repo.RoleCustomer:
		return "Müşteri"
	default:
		return "Tanımsız"
	}
}

func activeLabel(active *bool) string {
	if active == nil {
		if policy.ActiveWhenUnset {
			return "aktif"
		}
		return "pasif"
	}
	if *active {
		return "aktif"
	}
	return "pasif"
}

func displayOr(primary, fallback string) string {
	if s := strings.TrimSpace(primary); s != "" {
		return s
	}
	return strings.TrimSpace(fallback)
}
