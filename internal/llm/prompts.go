package llm

import "fmt"

// extractionPrompt asks the model for product fields as a bare JSON object.
// The prompt is in Arabic because the scraped channels are Arabic retail
// channels; the field names in the JSON contract stay English.
func extractionPrompt(text, channelName string) string {
	return fmt.Sprintf(`أنت خبير في استخراج بيانات المنتجات من رسائل التليجرام.
استخرج المعلومات التالية من النص بدقة:

النص:
%s

القناة: %s

استخرج التالي بصيغة JSON:
{
    "name": "اسم المنتج (السطر الأول عادة)",
    "short_description": "وصف قصير (السطر الثاني إذا وُجد)",
    "description": "الوصف الكامل (باقي النص)",
    "current_price": رقم السعر الحالي أو null,
    "old_price": السعر القديم إذا وُجد أو null
}

ملاحظات مهمة:
- السعر يكون بصيغة رقمية فقط (مثال: 150 أو 150.5)
- تجاهل الإيموجي والرموز
- إذا كان هناك سعرين، الأقل هو current_price والأعلى old_price
- إذا كان سعر واحد فقط، ضعه في current_price واترك old_price null
- قد يكون السعر مكتوب: "150 جنيه" أو "بسعر 150" أو "السعر: 150 ج"
- امسح أي ذكر لكلمة "اسم المنتج" من الاسم

أرجع JSON فقط بدون أي نص إضافي.`, text, channelName)
}
